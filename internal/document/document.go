package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// Kind identifies the source format of an uploaded document.
type Kind string

const (
	KindPDF  Kind = "pdf"
	KindText Kind = "txt"
)

// DefaultPreviewWords is the number of words shown before the user asks for a summary.
const DefaultPreviewWords = 100

var (
	ErrUnsupportedType = errors.New("unsupported file type: upload a PDF or TXT file")
	ErrEmpty           = errors.New("uploaded file is empty")
)

// Extracted is the text pulled from one uploaded file.
type Extracted struct {
	Name string
	Kind Kind
	Text string
}

// KindOf maps a file name to a supported Kind using its extension.
func KindOf(name string) (Kind, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "pdf":
		return KindPDF, nil
	case "txt":
		return KindText, nil
	default:
		return "", ErrUnsupportedType
	}
}

// Extract returns the text content of an uploaded PDF or plain-text file.
func Extract(name string, data []byte) (Extracted, error) {
	kind, err := KindOf(name)
	if err != nil {
		return Extracted{}, err
	}
	if len(data) == 0 {
		return Extracted{}, ErrEmpty
	}
	var text string
	switch kind {
	case KindPDF:
		text, err = pdfText(data)
		if err != nil {
			return Extracted{}, err
		}
	case KindText:
		text = string(data)
		if !utf8.ValidString(text) {
			text = strings.ToValidUTF8(text, "�")
		}
	}
	return Extracted{Name: filepath.Base(name), Kind: kind, Text: text}, nil
}

func pdfText(data []byte) (text string, err error) {
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("extract pdf text: %v", r)
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read pdf text: %w", err)
	}
	return buf.String(), nil
}

// Preview returns the first n words of text joined by single spaces. "..." is
// appended when exactly n words were taken.
func Preview(text string, n int) string {
	if n <= 0 {
		n = DefaultPreviewWords
	}
	words := strings.Fields(text)
	if len(words) > n {
		words = words[:n]
	}
	out := strings.Join(words, " ")
	if len(words) == n {
		out += "..."
	}
	return out
}
