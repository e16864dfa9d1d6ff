package extract

import (
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/biosbias/internal/dedup"
	"github.com/ppiankov/biosbias/internal/model"
)

const (
	isA  = " is a "
	isAn = " is an "
)

// A period, spaces, then a capital letter ends the title sentence
var sentenceEndRegex = regexp.MustCompile(`\. +[A-Z]`)

// TitleMatcher matches occupation titles; *titles.Catalog implements it
type TitleMatcher interface {
	MatchPrefix(s string) (string, int, bool)
	Lookup(rawTitle string) (string, bool)
}

// Extractor finds "Name is a <title>. <bio>" lines in page text.
// It holds no mutable state and may be shared between goroutines.
type Extractor struct {
	titles TitleMatcher
	cfg    model.ExtractConfig
	logger *zap.Logger
}

// NewExtractor creates a new extractor. A nil logger discards diagnostics.
func NewExtractor(titles TitleMatcher, cfg model.ExtractConfig, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		titles: titles,
		cfg:    cfg,
		logger: logger,
	}
}

// ExtractFromPage returns the candidate bio records of one page, with exact
// duplicate lines removed. Every rejected line is skipped silently.
func (e *Extractor) ExtractFromPage(text, uri string) []model.BioRecord {
	// Cheap filter for non-English pages
	if !strings.Contains(text, "the") {
		return nil
	}

	var records []model.BioRecord
	for _, line := range strings.Split(text, "\n") {
		if record, ok := e.extractLine(line, uri); ok {
			records = append(records, record)
		}
	}

	return dedup.Exact(records)
}

// extractLine applies the line rules in order and builds a record if all pass
func (e *Extractor) extractLine(line, uri string) (model.BioRecord, bool) {
	if len(line) < e.cfg.MinLength {
		return model.BioRecord{}, false
	}

	// Locate "is a"/"is an" near the start of the line
	window := len(isA) + e.cfg.MaxPrecede
	var a, b int
	if i := strings.Index(head(line, window), isA); i >= 0 {
		a, b = i, i+len(isA)
	} else if i := strings.Index(head(line, window+1), isAn); i >= 0 {
		a, b = i, i+len(isAn)
	} else {
		return model.BioRecord{}, false
	}

	// "is an architect", or one word later: "is an American architect"
	rawTitle, n, ok := e.titles.MatchPrefix(line[b:])
	end := b + n
	if !ok {
		c := strings.IndexByte(line[b:], ' ')
		if c < 0 {
			return model.BioRecord{}, false
		}
		c += b
		// "is a performer, architect ..." is a list of titles
		if line[c-1] == ',' {
			return model.BioRecord{}, false
		}
		rawTitle, n, ok = e.titles.MatchPrefix(line[c+1:])
		if !ok {
			return model.BioRecord{}, false
		}
		end = c + 1 + n
	}

	title, ok := e.titles.Lookup(rawTitle)
	if !ok {
		e.logger.Warn("unexpected title",
			zap.String("title", rawTitle),
			zap.String("uri", uri),
		)
		return model.BioRecord{}, false
	}

	gender := InferGender(line)
	if gender == model.GenderUnknown {
		return model.BioRecord{}, false
	}

	// "is an architect, ..." and "is an architect and ..." are compound titles
	if rest := line[end:]; strings.HasPrefix(rest, ",") || strings.HasPrefix(rest, " and ") {
		return model.BioRecord{}, false
	}

	// Tabs after the title are archive formatting artifacts
	if t := strings.IndexByte(line[end:], '\t'); t >= 0 {
		line = line[:end+t]
	}
	if len(line) > e.cfg.MaxLineLen {
		return model.BioRecord{}, false
	}

	loc := sentenceEndRegex.FindStringIndex(line[end:])
	if loc == nil {
		return model.BioRecord{}, false
	}
	startPos := end + loc[0] + 1

	if body := strings.TrimSpace(line[startPos:]); len(body) < e.cfg.MinLength {
		return model.BioRecord{}, false
	}

	name, ok := ExtractName(line[:a])
	if !ok {
		return model.BioRecord{}, false
	}

	return model.BioRecord{
		Raw:      line,
		Name:     name,
		RawTitle: rawTitle,
		Title:    title,
		Gender:   gender,
		StartPos: startPos,
		URI:      uri,
	}, true
}

// head returns at most the first n bytes of s
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
