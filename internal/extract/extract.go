package extract

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	// MimePDF is the MIME type recorded for PDF uploads.
	MimePDF = "application/pdf"
	// MimeLaTeX is the MIME type recorded for LaTeX sources.
	MimeLaTeX = "application/x-latex"
	// MimeText is the MIME type recorded for plain text uploads.
	MimeText = "text/plain"
)

// ErrUnsupportedType indicates the upload is not a PDF, LaTeX, or plain
// text file.
var ErrUnsupportedType = errors.New("unsupported file type")

var pdfMagic = []byte("%PDF-")

// TextFromBytes pulls resume text from an uploaded file. PDF content is
// extracted with github.com/ledongthuc/pdf; .tex and .txt pass through
// unchanged.
func TextFromBytes(data []byte, fileName string) (text, mimeType string, err error) {
	switch detectType(data, fileName) {
	case MimePDF:
		text, err := pdfText(data)
		if err != nil {
			return "", "", fmt.Errorf("extract pdf %s: %w", fileName, err)
		}
		return text, MimePDF, nil
	case MimeLaTeX:
		if !utf8.Valid(data) {
			return "", "", fmt.Errorf("extract %s: not valid UTF-8", fileName)
		}
		return string(data), MimeLaTeX, nil
	case MimeText:
		if !utf8.Valid(data) {
			return "", "", fmt.Errorf("extract %s: not valid UTF-8", fileName)
		}
		return string(data), MimeText, nil
	default:
		return "", "", fmt.Errorf("extract %s: %w", fileName, ErrUnsupportedType)
	}
}

func detectType(data []byte, fileName string) string {
	if bytes.HasPrefix(data, pdfMagic) {
		return MimePDF
	}
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return MimePDF
	case ".tex":
		return MimeLaTeX
	case ".txt":
		return MimeText
	default:
		return ""
	}
}

func pdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", pageNum, err)
		}
		b.WriteString(content)
		b.WriteString("\n")
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", errors.New("no extractable text")
	}
	return text, nil
}
