// Package sticker extracts feature strings from window sticker documents:
// PDF content streams, portal HTML pages, or plain text files, reached by
// URL or local path.
package sticker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"

	"github.com/hazyhaar/stickermatch/featmap"
)

// ErrNoTextContent marks a document with no extractable text, typically a
// scanned image-only PDF. The workflow skips such vehicles.
var ErrNoTextContent = errors.New("sticker: no text content")

// Config configures the extractor.
type Config struct {
	// HTTPClient downloads URL sources. Default: 30s-timeout client.
	HTTPClient *http.Client

	// TempDir receives downloaded documents. Default: os.TempDir().
	TempDir string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.TempDir == "" {
		c.TempDir = os.TempDir()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Extractor turns a window sticker document into an ordered, deduplicated
// list of feature strings with section hints.
type Extractor struct {
	cfg Config
	md  *converter.Converter
}

// New creates an Extractor.
func New(cfg Config) *Extractor {
	cfg.defaults()
	return &Extractor{cfg: cfg, md: newMarkdownConverter()}
}

// ExtractFeatures extracts features from a window sticker reachable by
// http(s) URL or local path. The result preserves document order with
// duplicates removed; Section carries the sticker section the feature was
// found under ("Safety" etc.) when the manufacturer layout is recognized.
func (e *Extractor) ExtractFeatures(ctx context.Context, source string) ([]featmap.ExtractedFeature, error) {
	log := e.cfg.Logger

	docPath := source
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		tmp, err := e.download(ctx, source)
		if err != nil {
			return nil, err
		}
		defer os.Remove(tmp)
		docPath = tmp
	}

	text, err := e.extractText(docPath)
	if err != nil {
		return nil, err
	}

	features := dedupe(parseSections(text))
	log.Info("sticker: features extracted", "source", source, "features", len(features))
	return features, nil
}

// extractText dispatches on file extension; anything that is not HTML or
// plain text is treated as PDF, the portal's dominant format.
func (e *Extractor) extractText(docPath string) (string, error) {
	switch strings.ToLower(path.Ext(docPath)) {
	case ".html", ".htm":
		return extractHTMLText(docPath, e.md)
	case ".txt":
		data, err := os.ReadFile(docPath)
		if err != nil {
			return "", err
		}
		if len(data) == 0 {
			return "", ErrNoTextContent
		}
		return string(data), nil
	default:
		return extractPDFText(docPath)
	}
}

// download fetches the document to a temp file, keeping the URL's
// extension so dispatch works on the local copy.
func (e *Extractor) download(ctx context.Context, src string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return "", fmt.Errorf("sticker: request %s: %w", src, err)
	}
	resp, err := e.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sticker: download %s: %w", src, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sticker: download %s: HTTP %d", src, resp.StatusCode)
	}

	f, err := os.CreateTemp(e.cfg.TempDir, "sticker-*"+extensionFromURL(src))
	if err != nil {
		return "", fmt.Errorf("sticker: temp file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("sticker: save download: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("sticker: save download: %w", err)
	}
	return f.Name(), nil
}

// extensionFromURL returns the URL path's extension, defaulting to .pdf.
func extensionFromURL(src string) string {
	u, err := url.Parse(src)
	if err != nil {
		return ".pdf"
	}
	if ext := path.Ext(u.Path); ext != "" {
		return ext
	}
	return ".pdf"
}

// dedupe removes duplicate feature texts while preserving order. The first
// occurrence's section hint wins.
func dedupe(in []sectionedFeature) []featmap.ExtractedFeature {
	seen := make(map[string]bool, len(in))
	var out []featmap.ExtractedFeature
	for _, f := range in {
		key := featmap.Normalize(f.Text)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, featmap.ExtractedFeature{Text: f.Text, Section: f.Section})
	}
	return out
}
