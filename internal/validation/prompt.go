package validation

import (
	"strings"
	"unicode"

	apperrors "github.com/zatekoja/RadiologyOrderIntake/backend/pkg/errors"

	"github.com/zatekoja/RadiologyOrderIntake/backend/internal/domain/entities"
)

// Template placeholders. Templates that omit them get the corresponding
// sections appended instead.
const (
	PlaceholderDictation = "{{DICTATION_TEXT}}"
	PlaceholderContext   = "{{DATABASE_CONTEXT}}"
)

const overrideInstruction = `

IMPORTANT: The ordering physician has reviewed earlier validation feedback and
supplied a clinical justification for proceeding. Treat that justification as
authoritative and return the most specific ICD-10 and CPT codes that support it.`

const outputInstruction = `

Respond with a single JSON object and nothing else, using exactly these keys:
{"validationStatus": "appropriate" | "needs_clarification" | "inappropriate",
 "complianceScore": number from 0 to 100,
 "feedback": string,
 "suggestedICD10Codes": [{"code": string, "description": string, "isPrimary": boolean}],
 "suggestedCPTCodes": [{"code": string, "description": string}]}
Exactly one ICD-10 code must have isPrimary set to true.`

// PromptInput carries everything BuildPrompt splices into a template.
type PromptInput struct {
	SanitizedText    string
	ReferenceContext string
	// WordLimit caps ReferenceContext only. Zero or less omits the context.
	WordLimit  int
	IsOverride bool
}

// BuildPrompt renders the template with the sanitized dictation and the
// reference context truncated to the word limit. The dictation is never
// truncated.
func BuildPrompt(tmpl *entities.PromptTemplate, in PromptInput) (string, error) {
	if tmpl == nil || strings.TrimSpace(tmpl.Content) == "" {
		return "", apperrors.NewTemplateMissingError("no active validation prompt template")
	}

	refContext := TruncateWords(in.ReferenceContext, in.WordLimit)

	content := tmpl.Content
	hasDictation := strings.Contains(content, PlaceholderDictation)
	hasContext := strings.Contains(content, PlaceholderContext)

	// single pass so text inside the dictation is never re-expanded
	prompt := strings.NewReplacer(
		PlaceholderDictation, in.SanitizedText,
		PlaceholderContext, refContext,
	).Replace(content)

	var b strings.Builder
	b.WriteString(prompt)
	if !hasContext && refContext != "" {
		b.WriteString("\n\nReference codes:\n")
		b.WriteString(refContext)
	}
	if !hasDictation {
		b.WriteString("\n\nClinical dictation:\n")
		b.WriteString(in.SanitizedText)
	}
	if in.IsOverride {
		b.WriteString(overrideInstruction)
	}
	if !strings.Contains(content, "validationStatus") {
		b.WriteString(outputInstruction)
	}
	return b.String(), nil
}

// TruncateWords keeps the first limit whitespace-separated words with their
// original separators, so line structure survives.
func TruncateWords(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	text = strings.TrimSpace(text)
	words := 0
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) {
			if inWord && words == limit {
				return text[:i]
			}
			inWord = false
			continue
		}
		if !inWord {
			inWord = true
			words++
		}
	}
	return text
}

// FormatReferenceContext renders reference rows as one line per code.
func FormatReferenceContext(codes []entities.ReferenceCode) string {
	if len(codes) == 0 {
		return ""
	}
	var b strings.Builder
	for i, c := range codes {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(c.System)
		b.WriteByte(' ')
		b.WriteString(c.Code)
		b.WriteString(": ")
		b.WriteString(c.Description)
	}
	return b.String()
}
