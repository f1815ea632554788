package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize_RedactsIdentifiers(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
		absent   string
	}{
		{"ssn", "SSN 123-45-6789 on file", PlaceholderSSN, "123-45-6789"},
		{"phone", "call (555) 123-4567 for results", PlaceholderPhone, "123-4567"},
		{"dashed phone", "cell 555-867-5309", PlaceholderPhone, "867-5309"},
		{"email", "send to jane.doe@example.com", PlaceholderEmail, "jane.doe"},
		{"url", "see https://portal.example.com/p/42", PlaceholderURL, "portal.example.com"},
		{"numeric date", "seen on 03/14/2024", PlaceholderDate, "03/14/2024"},
		{"iso date", "DOB 1951-07-04", PlaceholderDate, "1951-07-04"},
		{"written date", "onset March 3, 2024", PlaceholderDate, "March 3"},
		{"age over 89", "92-year-old female", PlaceholderAge, "92-year"},
		{"mrn", "MRN: A1234567 admitted", "MRN: " + PlaceholderMRN, "A1234567"},
		{"street", "lives at 42 Maple Grove Avenue", PlaceholderAddress, "Maple Grove"},
		{"zip", "Springfield, IL 62704", ", IL " + PlaceholderZip, "62704"},
		{"titled name", "referred by Dr. Alvarez today", PlaceholderName, "Alvarez"},
		{"labelled name", "Patient name: John Q. Smith", "Patient name: " + PlaceholderName, "Smith"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Sanitize(tt.input)
			assert.Contains(t, out, tt.contains)
			assert.NotContains(t, out, tt.absent)
		})
	}
}

func TestSanitize_LeavesClinicalContentIntact(t *testing.T) {
	inputs := []string{
		"72-year-old male with 3 weeks of low back pain radiating to left leg, DDD at L4-L5",
		"Request CT 72148 and MRI lumbar spine without contrast, ICD M54.5",
		"Hx of fall, 2 views chest, follow up in 6 weeks",
	}
	for _, in := range inputs {
		assert.Equal(t, in, Sanitize(in))
	}
}

func TestSanitize_DigitsGluedToEmail(t *testing.T) {
	assert.Equal(t, "[EMAIL][PHONE]", Sanitize("x@y.com555 123 4567"))

	out := Sanitize("Contact jdoe@clinic.org555-123-4567 for results")
	assert.Equal(t, "Contact [EMAIL][PHONE] for results", out)
}

func FuzzSanitize(f *testing.F) {
	for _, seed := range []string{
		"x@y.com555 123 4567",
		"Contact jdoe@clinic.org555-123-4567 for results",
		"Name: Mary Jones, DOB 02/11/1930, 94 yo, MRN 88812345, SSN 123-45-6789",
		"Dr. Patel at 10 Downing Street, Austin, TX 78701-1234, ph +1 512-555-0100",
		"email a.b@c.io or visit www.clinic.example/path on Jan 5th, 2023",
		"www.a.org/x@y.com03/14/2024",
		"[NAME]: already [PHONE] redacted [AGE_90_PLUS]",
		"",
	} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, in string) {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once))
	})
}
