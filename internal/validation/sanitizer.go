// Package validation holds the pure stages of the clinical validation
// pipeline: PHI redaction, keyword extraction, prompt construction and
// provider response parsing. Nothing here performs I/O.
package validation

import "regexp"

// Placeholder tokens written in place of redacted identifiers. None of them
// can be matched by any rule below, which keeps Sanitize idempotent.
const (
	PlaceholderSSN     = "[SSN]"
	PlaceholderMRN     = "[MRN]"
	PlaceholderPhone   = "[PHONE]"
	PlaceholderEmail   = "[EMAIL]"
	PlaceholderURL     = "[URL]"
	PlaceholderDate    = "[DATE]"
	PlaceholderAge     = "[AGE_90_PLUS]"
	PlaceholderAddress = "[ADDRESS]"
	PlaceholderZip     = "[ZIP]"
	PlaceholderName    = "[NAME]"
)

type redactionRule struct {
	name        string
	pattern     *regexp.Regexp
	replacement string
}

// phiRules run in order. URLs and emails go first: their placeholders end
// in "]", which gives a digit run glued to them a word boundary before the
// digit rules run. Identifiers with fixed digit layouts come next so the
// looser phone and date patterns never see them.
var phiRules = []redactionRule{
	{
		name:        "url",
		pattern:     regexp.MustCompile(`(?i)\b(?:https?://|www\.)[^\s<>"]+`),
		replacement: PlaceholderURL,
	},
	{
		name:        "email",
		pattern:     regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`),
		replacement: PlaceholderEmail,
	},
	{
		name:        "ssn",
		pattern:     regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),
		replacement: PlaceholderSSN,
	},
	{
		name:        "mrn",
		pattern:     regexp.MustCompile(`((?i:\b(?:mrn|medical record(?: number| no\.?)?|patient id|account(?: number| no\.?)?))\s*[:#]?\s*)[A-Za-z]*\d[A-Za-z0-9-]{3,}`),
		replacement: "${1}" + PlaceholderMRN,
	},
	{
		name:        "phone",
		pattern:     regexp.MustCompile(`(?:\+?1[\s.-]?)?(?:\(\d{3}\)|\b\d{3})[\s.-]?\d{3}[\s.-]\d{4}\b`),
		replacement: PlaceholderPhone,
	},
	{
		name:        "date_numeric",
		pattern:     regexp.MustCompile(`\b(?:\d{1,2}[/-]\d{1,2}[/-](?:\d{4}|\d{2})|\d{4}-\d{2}-\d{2})\b`),
		replacement: PlaceholderDate,
	},
	{
		name:        "date_written",
		pattern:     regexp.MustCompile(`(?i)\b(?:jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:t(?:ember)?)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
		replacement: PlaceholderDate,
	},
	{
		name:        "age_over_89",
		pattern:     regexp.MustCompile(`(?i)\b(?:9\d|1[0-2]\d)[\s-]*(?:years?|yrs?|y/?o)(?:[\s-]*old)?\b`),
		replacement: PlaceholderAge,
	},
	{
		name:        "street_address",
		pattern:     regexp.MustCompile(`\b\d{1,6}\s+(?:[A-Z][a-z]+\s+){1,4}(?:Street|St|Avenue|Ave|Road|Rd|Boulevard|Blvd|Lane|Ln|Drive|Court|Ct|Way|Place|Pl|Terrace|Circle|Parkway|Pkwy)\b\.?`),
		replacement: PlaceholderAddress,
	},
	{
		name:        "zip_with_state",
		pattern:     regexp.MustCompile(`(,\s*[A-Z]{2}\s+)\d{5}(?:-\d{4})?\b`),
		replacement: "${1}" + PlaceholderZip,
	},
	{
		name:        "zip_labelled",
		pattern:     regexp.MustCompile(`((?i:\bzip(?: code)?|\bpostal code)\s*[:#]?\s*)\d{5}(?:-\d{4})?\b`),
		replacement: "${1}" + PlaceholderZip,
	},
	{
		name:        "zip_plus_four",
		pattern:     regexp.MustCompile(`\b\d{5}-\d{4}\b`),
		replacement: PlaceholderZip,
	},
	{
		name:        "titled_name",
		pattern:     regexp.MustCompile(`\b(?:Mr|Mrs|Ms|Miss|Mx|Dr)\.?\s+[A-Z][a-z]+(?:[\s-][A-Z][a-z]+)?`),
		replacement: PlaceholderName,
	},
	{
		name:        "labelled_name",
		pattern:     regexp.MustCompile(`((?i:\b(?:patient(?:'s)? name|name|pt name))\s*[:\-]\s*)[A-Z][a-z]+(?:\s+[A-Z](?:\.|\b))?(?:\s+[A-Z][a-z]+)*`),
		replacement: "${1}" + PlaceholderName,
	},
}

// Sanitize redacts PHI from free text. It never fails, and
// Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(text string) string {
	// A redaction can expose a boundary another rule needs, so passes repeat
	// until nothing changes. Every match consumes text outside placeholders,
	// which bounds the loop.
	for {
		next := sanitizePass(text)
		if next == text {
			return text
		}
		text = next
	}
}

func sanitizePass(text string) string {
	for _, rule := range phiRules {
		text = rule.pattern.ReplaceAllString(text, rule.replacement)
	}
	return text
}
