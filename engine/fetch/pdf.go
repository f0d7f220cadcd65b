package fetch

import (
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/sourcechat/sourcechat/engine/domain"
)

// fetchPDF extracts text from the stored upload, one Page per PDF page in
// page order. Pages whose text cannot be extracted are skipped; filtering
// of empty pages happens downstream in normalization.
func fetchPDF(src domain.Source) ([]Page, error) {
	if src.PDFPath == "" {
		return nil, domain.ErrMissingFile
	}

	file, reader, err := pdf.Open(src.PDFPath)
	if err != nil {
		return nil, fmt.Errorf("fetch: open pdf %s: %w", src.PDFPath, err)
	}
	defer file.Close()

	total := reader.NumPage()
	pages := make([]Page, 0, total)
	for i := 1; i <= total; i++ {
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, Page{Number: i, Text: text})
	}
	return pages, nil
}
