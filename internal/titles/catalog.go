// Package titles holds the occupation title catalog and its compiled matcher.
package titles

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed titles.yaml
var defaultCatalog []byte

// Catalog maps occupation titles to normalized labels and matches them in text.
// A Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	titles  []string          // Match order: no title is preceded by a prefix of itself
	labels  map[string]string // Lower-cased title -> label
	matcher *regexp.Regexp
}

// NewCatalog builds a catalog from a title -> label mapping
func NewCatalog(mapping map[string]string) (*Catalog, error) {
	if len(mapping) == 0 {
		return nil, fmt.Errorf("empty title catalog")
	}

	titles := make([]string, 0, len(mapping))
	labels := make(map[string]string, len(mapping))
	for title, label := range mapping {
		title = strings.TrimSpace(title)
		if title == "" || label == "" {
			return nil, fmt.Errorf("invalid catalog entry %q: %q", title, label)
		}
		key := strings.ToLower(title)
		if prev, ok := labels[key]; ok && prev != label {
			return nil, fmt.Errorf("conflicting labels for title %q: %q and %q", title, prev, label)
		}
		titles = append(titles, title)
		labels[key] = label
	}
	orderTitles(titles)

	alternatives := make([]string, len(titles))
	for i, title := range titles {
		alternatives[i] = escapeTitle(title)
	}

	// \b would accept "architect" inside "architecté"
	matcher, err := regexp.Compile(`^(` + strings.Join(alternatives, "|") + `)(?:[^\p{L}\p{N}_]|$)`)
	if err != nil {
		return nil, fmt.Errorf("compile title matcher: %w", err)
	}

	return &Catalog{
		titles:  titles,
		labels:  labels,
		matcher: matcher,
	}, nil
}

// Parse builds a catalog from a YAML (or JSON) title -> label document
func Parse(data []byte) (*Catalog, error) {
	var mapping map[string]string
	if err := yaml.Unmarshal(data, &mapping); err != nil {
		return nil, fmt.Errorf("parse title catalog: %w", err)
	}
	return NewCatalog(mapping)
}

// Load reads a catalog file. An empty path returns the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read title catalog: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in catalog
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Lookup returns the normalized label for a matched title, ignoring case
func (c *Catalog) Lookup(rawTitle string) (string, bool) {
	label, ok := c.labels[strings.ToLower(rawTitle)]
	return label, ok
}

// MatchPrefix matches a title at the very start of s. It returns the matched
// text and the byte offset just past it.
func (c *Catalog) MatchPrefix(s string) (string, int, bool) {
	loc := c.matcher.FindStringSubmatchIndex(s)
	if loc == nil {
		return "", 0, false
	}
	return s[:loc[3]], loc[3], true
}

// Titles returns the titles in match order
func (c *Catalog) Titles() []string {
	out := make([]string, len(c.titles))
	copy(out, c.titles)
	return out
}

// Entries returns "title=label" pairs in match order
func (c *Catalog) Entries() []string {
	out := make([]string, len(c.titles))
	for i, t := range c.titles {
		out[i] = t + "=" + c.labels[strings.ToLower(t)]
	}
	return out
}

// Len returns the number of titles
func (c *Catalog) Len() int {
	return len(c.titles)
}

// orderTitles sorts longest first so that "Nurse Practitioner" is tried before
// "Nurse"; the alternation takes the first alternative that matches.
func orderTitles(titles []string) {
	sort.Slice(titles, func(i, j int) bool {
		if len(titles[i]) != len(titles[j]) {
			return len(titles[i]) > len(titles[j])
		}
		return titles[i] < titles[j]
	})
}

// escapeTitle turns a title into a pattern. All-caps titles are abbreviations
// and match literally; otherwise each upper-case letter also matches its lower
// case form.
func escapeTitle(title string) string {
	if isUpper(title) {
		return regexp.QuoteMeta(title)
	}

	var b strings.Builder
	for _, r := range title {
		if unicode.IsUpper(r) {
			b.WriteString("[")
			b.WriteRune(r)
			b.WriteRune(unicode.ToLower(r))
			b.WriteString("]")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	return b.String()
}

// isUpper reports whether s has at least one cased letter and no lower-case letters
func isUpper(s string) bool {
	cased := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			cased = true
		}
	}
	return cased
}
