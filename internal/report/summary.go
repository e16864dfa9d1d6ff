// Package report summarizes a bios corpus by title and gender.
package report

import (
	"sort"

	"github.com/ppiankov/biosbias/internal/model"
)

// TitleCount is the number of bios of one title, split by gender
type TitleCount struct {
	Title  string
	Female int
	Male   int
}

// Total returns the number of bios with this title
func (c TitleCount) Total() int {
	return c.Female + c.Male
}

// FemaleShare returns the fraction of female bios, 0 when empty
func (c TitleCount) FemaleShare() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.Female) / float64(c.Total())
}

// Summary is the per-title breakdown of a corpus
type Summary struct {
	Total  int
	Female int
	Male   int
	Titles []TitleCount // Largest titles first, ties by name
}

// Summarize counts records by title and gender
func Summarize(records []model.BioRecord) *Summary {
	s := &Summary{Total: len(records)}
	byTitle := make(map[string]*TitleCount)

	for i := range records {
		r := &records[i]
		c, ok := byTitle[r.Title]
		if !ok {
			c = &TitleCount{Title: r.Title}
			byTitle[r.Title] = c
		}
		switch r.Gender {
		case model.GenderFemale:
			c.Female++
			s.Female++
		case model.GenderMale:
			c.Male++
			s.Male++
		}
	}

	s.Titles = make([]TitleCount, 0, len(byTitle))
	for _, c := range byTitle {
		s.Titles = append(s.Titles, *c)
	}
	sort.Slice(s.Titles, func(i, j int) bool {
		a, b := s.Titles[i], s.Titles[j]
		if a.Total() != b.Total() {
			return a.Total() > b.Total()
		}
		return a.Title < b.Title
	})
	return s
}
