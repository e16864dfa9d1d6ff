// Package dedup merges bio records collected across pages and shards.
package dedup

import (
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/biosbias/internal/model"
)

// Exact removes records whose Raw line was already seen, keeping the first
// occurrence and the original order.
func Exact(records []model.BioRecord) []model.BioRecord {
	seen := make(map[string]bool, len(records))
	var unique []model.BioRecord

	for _, r := range records {
		if !seen[r.Raw] {
			seen[r.Raw] = true
			unique = append(unique, r)
		}
	}

	return unique
}

// FilterIgnored drops records whose title label is in ignore
func FilterIgnored(records []model.BioRecord, ignore []string) []model.BioRecord {
	if len(ignore) == 0 {
		return records
	}

	skip := make(map[string]bool, len(ignore))
	for _, title := range ignore {
		skip[title] = true
	}

	kept := make([]model.BioRecord, 0, len(records))
	for _, r := range records {
		if !skip[r.Title] {
			kept = append(kept, r)
		}
	}
	return kept
}

type nameTitle struct {
	name  model.Name
	title string
}

// CollapseNameTitle keeps one record per (name, title): the longest Raw,
// then the lexicographically smallest Raw, then the smallest Path.
// Groups are emitted in order of first appearance.
func CollapseNameTitle(records []model.BioRecord) []model.BioRecord {
	best := make(map[nameTitle]int)

	out := make([]model.BioRecord, 0, len(records))
	for _, r := range records {
		key := nameTitle{name: r.Name, title: r.Title}
		i, ok := best[key]
		if !ok {
			best[key] = len(out)
			out = append(out, r)
			continue
		}
		if preferred(r, out[i]) {
			out[i] = r
		}
	}

	return out
}

// preferred reports whether a ranks before b in the (name, title) tie-break
func preferred(a, b model.BioRecord) bool {
	if len(a.Raw) != len(b.Raw) {
		return len(a.Raw) > len(b.Raw)
	}
	if a.Raw != b.Raw {
		return a.Raw < b.Raw
	}
	return a.Path < b.Path
}

type titleFirstLast struct {
	title string
	first string
	last  string
}

// CollapseMiddleNames removes name variants whose middle name is a strict
// prefix of another middle name with the same title, first and last name:
// {Mary Lynn Doe, Mary L Doe, Mary Doe} keeps Mary Lynn Doe, while
// {Mary L Doe, Mary I Doe} keeps both.
func CollapseMiddleNames(records []model.BioRecord) []model.BioRecord {
	groups := make(map[titleFirstLast][]model.BioRecord)
	var order []titleFirstLast

	for _, r := range records {
		key := titleFirstLast{title: r.Title, first: r.Name.First(), last: r.Name.Last()}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	out := make([]model.BioRecord, 0, len(records))
	for _, key := range order {
		group := groups[key]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}

		for _, r := range group {
			if !hasLongerMiddle(r, group) {
				out = append(out, r)
			}
		}
	}

	return out
}

// hasLongerMiddle reports whether some record in group extends r's middle name
func hasLongerMiddle(r model.BioRecord, group []model.BioRecord) bool {
	middle := r.Name.Middle()
	for _, other := range group {
		om := other.Name.Middle()
		if len(om) > len(middle) && strings.HasPrefix(om, middle) {
			return true
		}
	}
	return false
}

// Stats summarizes a dedup run
type Stats struct {
	Input   int // Records before any filtering
	Ignored int // Records dropped by the title ignore list
	Exact   int // Records left after exact-line dedup
	Output  int // Records left after all steps
}

// Deduplicator runs the global dedup pass
type Deduplicator struct {
	ignoreTitles []string
	logger       *zap.Logger
}

// New creates a Deduplicator that drops the given title labels first
func New(ignoreTitles []string, logger *zap.Logger) *Deduplicator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deduplicator{
		ignoreTitles: ignoreTitles,
		logger:       logger,
	}
}

// Run filters ignored titles, then applies exact, (name, title) and
// middle-name dedup in that order. The output is a fixed point: running it
// again returns the same records.
func (d *Deduplicator) Run(records []model.BioRecord) ([]model.BioRecord, Stats) {
	stats := Stats{Input: len(records)}

	kept := FilterIgnored(records, d.ignoreTitles)
	stats.Ignored = len(records) - len(kept)

	kept = Exact(kept)
	stats.Exact = len(kept)

	kept = CollapseMiddleNames(CollapseNameTitle(kept))
	stats.Output = len(kept)

	d.logger.Debug("dedup finished",
		zap.Int("input", stats.Input),
		zap.Int("ignored", stats.Ignored),
		zap.Int("exact", stats.Exact),
		zap.Int("output", stats.Output),
	)

	return kept, stats
}
