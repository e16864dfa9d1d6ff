// Package normalize masks pronouns and the subject's name in bio text.
package normalize

import (
	"regexp"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ppiankov/biosbias/internal/model"
)

// Pronouns and titles that reveal gender, in the case variants that are masked
const genderedTokens = `[Hh]e|[Ss]he|[Hh]er|[Hh]is|[Hh]im|[Hh]ers|[Hh]imself|[Hh]erself|[Mm][Rr]|[Mm][Rr][Ss]|[Mm][Ss]`

const nonWord = `[^\p{L}\p{N}_]`

// DefaultPlaceholder replaces every masked token
const DefaultPlaceholder = "_"

// Normalizer adds the masked Bio field to records.
// Compiled patterns are memoized per name since names repeat across records.
type Normalizer struct {
	placeholder string
	patterns    *gocache.Cache
}

// NewNormalizer creates a normalizer. An empty placeholder uses DefaultPlaceholder.
func NewNormalizer(placeholder string) *Normalizer {
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}
	return &Normalizer{
		placeholder: placeholder,
		patterns:    gocache.New(10*time.Minute, 10*time.Minute),
	}
}

// Normalize sets r.Bio to the bio body with gendered tokens and the
// subject's own name parts replaced by the placeholder
func (n *Normalizer) Normalize(r *model.BioRecord) {
	r.Bio = n.mask(n.pattern(r.Name), r.Body())
}

// NormalizeAll normalizes every record in place
func (n *Normalizer) NormalizeAll(records []model.BioRecord) {
	for i := range records {
		n.Normalize(&records[i])
	}
}

// mask replaces every token captured by re with the placeholder. The search
// resumes right after each token, so the separator that closed one match can
// open the next.
func (n *Normalizer) mask(re *regexp.Regexp, s string) string {
	var b strings.Builder
	last := 0
	for pos := 0; pos < len(s); {
		loc := re.FindStringSubmatchIndex(s[pos:])
		if loc == nil {
			break
		}
		start, end := pos+loc[2], pos+loc[3]
		b.WriteString(s[last:start])
		b.WriteString(n.placeholder)
		last, pos = end, end
	}
	b.WriteString(s[last:])
	return b.String()
}

// pattern returns the whole-word mask pattern for a name. Word boundaries
// are spelled out since \b only knows ASCII letters.
func (n *Normalizer) pattern(name model.Name) *regexp.Regexp {
	key := strings.Join(name[:], "\x00")
	if cached, found := n.patterns.Get(key); found {
		return cached.(*regexp.Regexp)
	}

	alternatives := []string{genderedTokens}
	for _, part := range name {
		if part != "" {
			alternatives = append(alternatives, regexp.QuoteMeta(part))
		}
	}

	re := regexp.MustCompile(`(?:^|` + nonWord + `)(` + strings.Join(alternatives, "|") + `)(?:` + nonWord + `|$)`)
	n.patterns.Set(key, re, gocache.DefaultExpiration)
	return re
}
