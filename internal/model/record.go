package model

import "strings"

// Gender is the apparent gender of a bio subject, inferred from pronouns
type Gender string

const (
	GenderUnknown Gender = ""
	GenderMale    Gender = "M"
	GenderFemale  Gender = "F"
)

// String returns a readable form of the gender
func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	default:
		return "unknown"
	}
}

// Name is a parsed personal name: first, middle (possibly empty), last.
// Name is comparable and is used directly as a map key during dedup.
type Name [3]string

// NewName builds a Name from its parts
func NewName(first, middle, last string) Name {
	return Name{first, middle, last}
}

func (n Name) First() string  { return n[0] }
func (n Name) Middle() string { return n[1] }
func (n Name) Last() string   { return n[2] }

// String joins the non-empty parts with single spaces
func (n Name) String() string {
	parts := make([]string, 0, 3)
	for _, p := range n {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// BioRecord is one biographical line mined from a crawled page
type BioRecord struct {
	Raw      string `json:"raw"`            // Full source line (after tab truncation)
	Name     Name   `json:"name"`           // Subject name
	RawTitle string `json:"raw_title"`      // Title exactly as matched in Raw
	Title    string `json:"title"`          // Normalized title label
	Gender   Gender `json:"gender"`         // M or F, never unknown
	StartPos int    `json:"start_pos"`      // Byte offset of the bio sentence in Raw
	URI      string `json:"uri"`            // WARC-Target-URI of the page
	Path     string `json:"path,omitempty"` // Archive shard the page came from
	Bio      string `json:"bio,omitempty"`  // Masked bio, set by the normalizer
}

// Body returns the bio sentence text without masking
func (r *BioRecord) Body() string {
	if r.StartPos < 0 || r.StartPos > len(r.Raw) {
		return ""
	}
	return strings.TrimSpace(r.Raw[r.StartPos:])
}
