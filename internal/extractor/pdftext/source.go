// Package pdftext reads text lines from PDF pages with ledongthuc/pdf,
// falling back to a pdfcpu rewrite for files the reader cannot open.
package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"sync"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/text/unicode/norm"
)

var disableConfigDir sync.Once

// Source implements extractor.TextSource for PDF files.
type Source struct {
	conf *model.Configuration
}

// New builds a Source. The pdfcpu configuration is only used to repair
// files whose cross-reference data the text reader rejects.
func New() *Source {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Source{conf: conf}
}

// Lines returns the non-empty text lines of the first maxPages pages.
func (s *Source) Lines(ctx context.Context, path string, maxPages int) (lines []string, err error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("extract canceled: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	// Both PDF libraries panic on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			lines = nil
			err = fmt.Errorf("parse pdf %s: panic: %v", path, rec)
		}
	}()

	reader, err := s.open(f)
	if err != nil {
		return nil, fmt.Errorf("read pdf %s: %w", path, err)
	}

	pages := reader.NumPage()
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}
	for pageNr := 1; pageNr <= pages; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("extract canceled: %w", err)
		}
		page := reader.Page(pageNr)
		if page.V.IsNull() {
			continue
		}
		lines = append(lines, assembleLines(page.Content().Text)...)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("no text in first %d page(s) of %s", pages, path)
	}
	return lines, nil
}

func (s *Source) open(f *os.File) (*pdf.Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat: %w", err)
	}
	reader, err := pdf.NewReader(f, info.Size())
	if err == nil {
		return reader, nil
	}
	repaired, rerr := s.rewrite(f)
	if rerr != nil {
		return nil, fmt.Errorf("%w (repair: %v)", err, rerr)
	}
	return pdf.NewReader(bytes.NewReader(repaired), int64(len(repaired)))
}

// rewrite re-serializes the document with pdfcpu, which tolerates broken
// xref tables and produces a plain one.
func (s *Source) rewrite(f *os.File) ([]byte, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	pdfCtx, err := api.ReadContext(f, s.conf)
	if err != nil {
		return nil, err
	}
	// Validation failures are tolerated; text extraction is best effort.
	_ = api.ValidateContext(pdfCtx)
	var buf bytes.Buffer
	if err := api.WriteContext(pdfCtx, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// assembleLines joins positioned glyphs into lines. A baseline shift of more
// than half the font size starts a new line; a horizontal gap wider than a
// fifth of the font size becomes a space. Ligature glyphs are folded with NFKC.
func assembleLines(texts []pdf.Text) []string {
	var (
		lines []string
		cur   strings.Builder
		prev  pdf.Text
		have  bool
	)
	flush := func() {
		line := strings.Join(strings.Fields(norm.NFKC.String(cur.String())), " ")
		if line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}
	for _, t := range texts {
		if have {
			size := math.Max(math.Max(t.FontSize, prev.FontSize), 2)
			switch {
			case math.Abs(t.Y-prev.Y) > size/2:
				flush()
			case t.X-(prev.X+prev.W) > size/5:
				cur.WriteByte(' ')
			}
		}
		cur.WriteString(t.S)
		prev, have = t, true
	}
	flush()
	return lines
}
