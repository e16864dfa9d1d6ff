package warc

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// PageText returns the plain text of a page record, truncated to maxLen bytes
// on a rune boundary (0 means no limit). WET conversion records are already
// text; response records are HTTP responses whose HTML is reduced to its
// visible text, one block element per line. Other record types report false.
func (r *Record) PageText(maxLen int) (string, bool, error) {
	var text string

	switch r.Type() {
	case TypeConversion:
		text = string(r.Body)
	case TypeResponse:
		t, ok, err := responseText(r.Body)
		if err != nil || !ok {
			return "", false, err
		}
		text = t
	default:
		return "", false, nil
	}

	return truncate(text, maxLen), true, nil
}

// responseText decodes an HTTP response payload and extracts its text
func responseText(payload []byte) (string, bool, error) {
	resp, err := http.ReadResponse(bodyReader(payload), nil)
	if err != nil {
		return "", false, fmt.Errorf("read response: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", false, nil
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	switch {
	case strings.Contains(contentType, "html"):
		doc, err := html.Parse(resp.Body)
		if err != nil {
			return "", false, fmt.Errorf("parse html: %w", err)
		}
		return VisibleText(doc), true, nil
	case strings.HasPrefix(contentType, "text/plain"):
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", false, fmt.Errorf("read body: %w", err)
		}
		return string(body), true, nil
	default:
		return "", false, nil
	}
}

// blockElements start a new line of text
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true,
	"br": true, "dd": true, "div": true, "dl": true, "dt": true,
	"figcaption": true, "footer": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true,
	"li": true, "main": true, "nav": true, "ol": true, "p": true,
	"pre": true, "section": true, "table": true, "td": true, "th": true,
	"title": true, "tr": true, "ul": true,
}

// VisibleText extracts the text of an HTML tree, skipping scripts and styles.
// Whitespace is collapsed inside lines and empty lines are dropped.
func VisibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "template", "svg":
				return
			}
		}

		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}

		block := n.Type == html.ElementNode && blockElements[n.Data]
		if block {
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if block {
			buf.WriteByte('\n')
		}
	}
	walk(n)

	lines := strings.Split(buf.String(), "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	i := maxLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i]
}
