package validation

import (
	"regexp"
	"sort"
	"strings"
)

// MaxKeywords bounds the extractor output.
const MaxKeywords = 40

var anatomyTerms = []string{
	"head", "brain", "skull", "face", "orbit", "sinus", "neck", "thyroid",
	"spine", "cervical", "thoracic", "lumbar", "sacral", "sacrum", "coccyx", "back",
	"chest", "lung", "heart", "breast", "rib", "abdomen", "liver", "gallbladder",
	"pancreas", "spleen", "kidney", "bladder", "pelvis", "prostate", "uterus", "ovary",
	"shoulder", "arm", "elbow", "forearm", "wrist", "hand", "finger",
	"hip", "thigh", "leg", "knee", "ankle", "foot", "toe", "joint", "disc",
}

var modalityTerms = []string{
	"mri", "ct", "cta", "mra", "x-ray", "xray", "radiograph", "ultrasound",
	"sonogram", "pet", "mammogram", "mammography", "fluoroscopy", "dexa",
	"contrast", "with contrast", "without contrast", "nuclear",
}

var conditionTerms = []string{
	"pain", "radiating", "radiculopathy", "sciatica", "numbness", "tingling",
	"weakness", "paresthesia", "fracture", "trauma", "injury", "fall", "swelling",
	"mass", "lump", "nodule", "tumor", "cancer", "metastatic", "metastasis",
	"infection", "fever", "headache", "seizure", "dizziness", "syncope",
	"stenosis", "herniation", "herniated", "bulge", "degenerative", "arthritis",
	"osteoarthritis", "instability", "cough", "shortness of breath", "hematuria",
	"bleeding", "stroke", "aneurysm", "obstruction", "bowel", "incontinence",
	"red flag", "failed conservative", "physical therapy", "chronic", "acute",
}

// abbreviationExpansions maps clinical shorthand to the term added alongside it.
var abbreviationExpansions = map[string]string{
	"ddd":   "degenerative disc disease",
	"djd":   "degenerative joint disease",
	"hnp":   "herniated nucleus pulposus",
	"lbp":   "low back pain",
	"sob":   "shortness of breath",
	"cva":   "stroke",
	"tia":   "transient ischemic attack",
	"dvt":   "deep vein thrombosis",
	"pe":    "pulmonary embolism",
	"mva":   "motor vehicle accident",
	"loc":   "loss of consciousness",
	"uti":   "urinary tract infection",
	"ra":    "rheumatoid arthritis",
	"oa":    "osteoarthritis",
	"ms":    "multiple sclerosis",
	"h/o":   "history of",
	"r/o":   "rule out",
	"s/p":   "status post",
	"hx":    "history",
	"fx":    "fracture",
	"sx":    "symptoms",
	"nsaid": "anti-inflammatory",
}

// anatomySynonyms add a canonical anatomy term when a lay phrase is present.
var anatomySynonyms = map[string]string{
	"low back":   "lumbar",
	"lower back": "lumbar",
	"tailbone":   "coccyx",
	"upper back": "thoracic",
	"mid back":   "thoracic",
	"neck pain":  "cervical",
	"sciatica":   "lumbar",
	"l4":         "lumbar",
	"l5":         "lumbar",
	"s1":         "sacral",
	"belly":      "abdomen",
	"collarbone": "clavicle",
}

type termMatcher struct {
	term    string
	adds    string
	pattern *regexp.Regexp
}

var (
	icd10Pattern = regexp.MustCompile(`\b(?:[A-TV-Z]\d[0-9A-Z](?:\.[0-9A-Z]{1,4})?|[a-tv-z]\d[0-9a-z]\.[0-9a-z]{1,4})\b`)
	cptPattern   = regexp.MustCompile(`\b\d{5}\b`)
	termMatchers = buildTermMatchers()
)

func buildTermMatchers() []termMatcher {
	var matchers []termMatcher
	add := func(term, adds string) {
		matchers = append(matchers, termMatcher{
			term:    term,
			adds:    adds,
			pattern: regexp.MustCompile(`(?i)(?:^|[^a-z0-9/])` + regexp.QuoteMeta(term) + `(?:$|[^a-z0-9/])`),
		})
	}
	for _, vocab := range [][]string{anatomyTerms, modalityTerms, conditionTerms} {
		for _, term := range vocab {
			add(term, "")
		}
	}
	for abbr, expansion := range abbreviationExpansions {
		add(abbr, expansion)
	}
	for phrase, canonical := range anatomySynonyms {
		add(phrase, canonical)
	}
	sort.Slice(matchers, func(i, j int) bool { return matchers[i].term < matchers[j].term })
	return matchers
}

// ExtractKeywords returns the sorted, de-duplicated medical terms and codes
// found in sanitized text. Words are lowercased, codes uppercased.
func ExtractKeywords(text string) []string {
	found := make(map[string]struct{})
	add := func(k string) {
		if k != "" {
			found[k] = struct{}{}
		}
	}

	for _, m := range termMatchers {
		if m.pattern.MatchString(text) {
			add(m.term)
			add(m.adds)
		}
	}

	for _, code := range icd10Pattern.FindAllString(text, -1) {
		add(strings.ToUpper(code))
	}

	// Radiology CPT codes fall in the 7xxxx range, with a few 9xxxx procedures
	for _, code := range cptPattern.FindAllString(text, -1) {
		if code[0] == '7' || code[0] == '9' {
			add(code)
		}
	}

	keywords := make([]string, 0, len(found))
	for k := range found {
		keywords = append(keywords, k)
	}
	sort.Strings(keywords)
	if len(keywords) > MaxKeywords {
		keywords = keywords[:MaxKeywords]
	}
	return keywords
}
