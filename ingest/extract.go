package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"taxrag/types"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Extraction is raw text pulled from one source file. PDF pages are joined
// with [PAGE n] markers so chunk metadata can keep page references.
type Extraction struct {
	Text   string
	Source types.SourceType
	Pages  int
}

// Extract pulls text from a source file by extension. Files that yield no
// usable text fail with an ExtractionError.
func Extract(filename string, data []byte) (*Extraction, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	var ex *Extraction
	var err error
	switch ext {
	case ".pdf":
		ex, err = extractPDF(filename, data)
	case ".md", ".markdown":
		ex = &Extraction{Text: string(data), Source: types.SourceMarkdown}
	case ".txt", "":
		ex = &Extraction{Text: string(data), Source: types.SourceText}
	default:
		return nil, types.ExtractionError{Source: filename, Reason: fmt.Sprintf("unsupported file type %q", ext)}
	}
	if err != nil {
		return nil, err
	}

	if !utf8.ValidString(ex.Text) {
		return nil, types.ExtractionError{Source: filename, Reason: "content is not valid UTF-8"}
	}
	if strings.TrimSpace(ex.Text) == "" {
		return nil, types.ExtractionError{Source: filename, Reason: "no text content"}
	}
	return ex, nil
}

// extractPDF goes through pdfcpu: validate, count pages, dump per-page
// content streams to a temp dir and scrape the text operators. pdfcpu has
// no direct text extraction, so this follows the content-stream route.
func extractPDF(filename string, data []byte) (*Extraction, error) {
	tempDir, err := os.MkdirTemp("", "taxrag-pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	tempFile := filepath.Join(tempDir, "source.pdf")
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write temp PDF file: %w", err)
	}

	pdfCtx, err := api.ReadContextFile(tempFile)
	if err != nil {
		return nil, types.ExtractionError{Source: filename, Reason: fmt.Sprintf("unreadable PDF: %v", err)}
	}
	if pdfCtx.Encrypt != nil {
		return nil, types.ExtractionError{Source: filename, Reason: "encrypted PDF"}
	}
	pageCount := pdfCtx.PageCount

	outDir := filepath.Join(tempDir, "pages")
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create pages dir: %w", err)
	}

	conf := model.NewDefaultConfiguration()
	if err := api.ExtractContentFile(tempFile, outDir, nil, conf); err != nil {
		return nil, types.ExtractionError{Source: filename, Reason: fmt.Sprintf("content extraction failed: %v", err)}
	}

	pageTexts := make(map[int]string, pageCount)
	files, _ := os.ReadDir(outDir)
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(f.Name(), "source_Content_page_%d", &pageNum); err != nil {
			if _, err := fmt.Sscanf(f.Name(), "Content_page_%d", &pageNum); err != nil {
				continue
			}
		}
		raw, err := os.ReadFile(filepath.Join(outDir, f.Name()))
		if err != nil {
			continue
		}
		pageTexts[pageNum] = contentStreamText(raw)
	}

	var b strings.Builder
	for page := 1; page <= pageCount; page++ {
		text := strings.TrimSpace(pageTexts[page])
		if text == "" {
			continue
		}
		fmt.Fprintf(&b, "[PAGE %d]\n%s\n\n", page, text)
	}

	return &Extraction{Text: b.String(), Source: types.SourcePDF, Pages: pageCount}, nil
}

// contentStreamText scrapes literal strings out of a decoded PDF content
// stream (the arguments of Tj/TJ show-text operators). Escapes for
// parentheses and backslashes are honored; everything else is passed
// through as-is.
func contentStreamText(stream []byte) string {
	var b strings.Builder
	depth := 0
	escaped := false

	for i := 0; i < len(stream); i++ {
		c := stream[i]
		if depth == 0 {
			if c == '(' {
				depth = 1
			}
			continue
		}

		if escaped {
			switch c {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte(' ')
			case '(', ')', '\\':
				b.WriteByte(c)
			}
			escaped = false
			continue
		}

		switch c {
		case '\\':
			escaped = true
		case '(':
			depth++
			b.WriteByte(c)
		case ')':
			depth--
			if depth == 0 {
				b.WriteByte(' ')
			} else {
				b.WriteByte(c)
			}
		default:
			// Keep the stream ASCII-clean; non-Latin1 encodings need a
			// font-aware decoder that pdfcpu does not provide.
			if (c >= 0x20 && c < 0x7f) || c == '\n' {
				b.WriteByte(c)
			}
		}
	}
	return b.String()
}
