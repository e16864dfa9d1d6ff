package extract

import (
	"regexp"

	"github.com/ppiankov/biosbias/internal/model"
)

var (
	// First and second person text is self-description or marketing copy
	selfReferenceRegex = regexp.MustCompile(`(?i)\b(?:I|you|your|me|my|mine|myself|our|ours|us|we|ourselves)\b`)
	maleRegex          = regexp.MustCompile(`(?i)\b(?:mr|his|he|him|himself)\b`)
	femaleRegex        = regexp.MustCompile(`(?i)\b(?:mrs|ms|hers|she|her|herself)\b`)
)

// InferGender classifies text by the pronouns it uses. It returns
// GenderUnknown for first/second person text and when both or neither of the
// male and female token sets appear.
func InferGender(text string) model.Gender {
	if selfReferenceRegex.MatchString(text) {
		return model.GenderUnknown
	}

	male := maleRegex.MatchString(text)
	female := femaleRegex.MatchString(text)

	switch {
	case female && !male:
		return model.GenderFemale
	case male && !female:
		return model.GenderMale
	default:
		return model.GenderUnknown
	}
}
