package sticker

import (
	"bytes"
	"os"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var htmlSanitizer = bluemonday.UGCPolicy()

func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
}

// extractHTMLText extracts visible sticker text from an HTML document.
// Portal sticker pages are usually a heading plus equipment lists; list
// items and table rows come out line-per-item so the section parser can
// work on them. Script, style, and boilerplate are dropped.
func extractHTMLText(path string, md *converter.Converter) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	clean := htmlSanitizer.SanitizeBytes(data)

	doc, err := html.Parse(bytes.NewReader(clean))
	if err != nil {
		// Messy portal markup: let the markdown converter have a go at
		// the sanitized bytes before giving up.
		out, cerr := md.ConvertString(string(clean))
		if cerr != nil {
			return "", err
		}
		return out, nil
	}

	var sb strings.Builder
	walkHTML(doc, &sb)
	text := strings.TrimSpace(sb.String())

	if text == "" {
		out, cerr := md.ConvertString(string(clean))
		if cerr != nil {
			return "", ErrNoTextContent
		}
		text = strings.TrimSpace(out)
	}
	if text == "" {
		return "", ErrNoTextContent
	}
	return text, nil
}

// walkHTML renders block elements line-per-block so list structure
// survives into the extracted text.
func walkHTML(n *html.Node, sb *strings.Builder) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script, atom.Style, atom.Noscript, atom.Nav, atom.Footer, atom.Header:
			return
		case atom.Div:
			// A div wrapping further block elements is a container; keep
			// descending. A leaf div is one line of text.
			if !hasBlockChild(n) {
				if text := collectText(n); text != "" {
					sb.WriteString(text)
					sb.WriteByte('\n')
				}
				return
			}
		case atom.Li, atom.Tr, atom.P, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			text := collectText(n)
			if text != "" {
				sb.WriteString(text)
				sb.WriteByte('\n')
			}
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(c, sb)
	}
}

// collectText gathers all text under a node, space-joined.
func collectText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func hasBlockChild(n *html.Node) bool {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		switch c.DataAtom {
		case atom.Div, atom.P, atom.Ul, atom.Ol, atom.Table,
			atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6:
			return true
		}
	}
	return false
}
