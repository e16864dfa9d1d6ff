// Test program to demonstrate bio extraction and normalization
// on a handful of hand-written lines, without any archive access
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/biosbias/internal/dedup"
	"github.com/ppiankov/biosbias/internal/extract"
	"github.com/ppiankov/biosbias/internal/model"
	"github.com/ppiankov/biosbias/internal/normalize"
	"github.com/ppiankov/biosbias/internal/titles"
)

const page = `Welcome to the faculty pages.
John Smith is an architect who designs sustainable housing. He has worked on projects across the country for twenty years and teaches at the local college.
John A. Smith is an architect who designs sustainable housing. He has worked on projects across the country for twenty years and teaches at the local college.
Dr. Maria Lopez, MD, is a surgeon at the city hospital. She specializes in pediatric cardiac surgery and has published over forty papers on the topic.
The Company is a leader in software. It builds tools that are used by thousands of teams across the world every single day of the year.
Click here to read more about the architect who designed this building.`

func main() {
	fmt.Println("=== Bio Extraction Test ===")
	fmt.Println()

	catalog, err := titles.Default()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load titles: %v\n", err)
		os.Exit(1)
	}

	cfg := model.DefaultExtractConfig()
	cfg.MinLength = 60
	extractor := extract.NewExtractor(catalog, cfg, nil)

	records := extractor.ExtractFromPage(page, "https://example.com/faculty")
	fmt.Printf("Extracted %d bios from %d lines\n", len(records), strings.Count(page, "\n")+1)
	fmt.Println(strings.Repeat("-", 60))
	for _, r := range records {
		fmt.Printf("  %-20s %-10s %s\n", r.Name.String(), r.Title, r.Gender)
	}

	people, stats := dedup.New(nil, nil).Run(records)
	fmt.Println()
	fmt.Printf("After dedup: %d/%d\n", stats.Output, stats.Input)
	fmt.Println(strings.Repeat("-", 60))

	normalize.NewNormalizer("_").NormalizeAll(people)
	for _, p := range people {
		fmt.Printf("  %s\n", p.Bio)
	}

	fmt.Println("\n=== Test Complete ===")
}
