package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter renders a Summary as a Markdown document
type MarkdownWriter struct {
	output io.Writer
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

// Write outputs the summary. sources lists the record files it was built from.
func (w *MarkdownWriter) Write(s *Summary, sources []string) error {
	md := markdown.NewMarkdown(w.output)

	md.H1("Bios Corpus Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Bios", strconv.Itoa(s.Total)},
			{"Titles", strconv.Itoa(len(s.Titles))},
			{"Female", strconv.Itoa(s.Female)},
			{"Male", strconv.Itoa(s.Male)},
		},
	})
	md.PlainText("")

	if s.Total > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Gender"),
			piechart.WithShowData(true),
		)
		chart.LabelAndIntValue("Female", uint64(s.Female))
		chart.LabelAndIntValue("Male", uint64(s.Male))
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	md.H2("Titles")
	md.PlainText("")
	if len(s.Titles) == 0 {
		md.Note("The corpus is empty.")
	} else {
		rows := make([][]string, len(s.Titles))
		for i, c := range s.Titles {
			rows[i] = []string{
				c.Title,
				strconv.Itoa(c.Total()),
				strconv.Itoa(c.Female),
				strconv.Itoa(c.Male),
				fmt.Sprintf("%.1f%%", 100*c.FemaleShare()),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Title", "Bios", "Female", "Male", "Female share"},
			Rows:   rows,
		})
	}
	md.PlainText("")

	if len(sources) > 0 {
		md.H2("Sources")
		md.PlainText("")
		md.BulletList(sources...)
		md.PlainText("")
	}

	return md.Build()
}
