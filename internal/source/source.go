// Package source resolves the various input forms (stdin, plain text,
// PDF, image) into a single trimmed UTF-8 string.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/readaloud-tools/readaloud/internal/ocr"
)

// ErrEmptyInput is returned when the resolved text is empty or
// whitespace-only.
var ErrEmptyInput = errors.New("input text is empty")

// Resolve reads text from path. An empty path or "-" reads stdin. PDF files
// go through text extraction, known image extensions through the OCR
// reader, and everything else is read as plain text.
func Resolve(ctx context.Context, path string, stdin io.Reader, images ocr.Reader) (string, error) {
	var (
		text string
		err  error
	)
	switch {
	case path == "" || path == "-":
		var data []byte
		data, err = io.ReadAll(stdin)
		if err != nil {
			err = fmt.Errorf("read stdin: %w", err)
		}
		text = string(data)
	case isImagePath(path):
		text, err = images.ReadImage(ctx, path)
	case strings.EqualFold(filepath.Ext(path), ".pdf"):
		text, err = extractPDF(path)
	default:
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			err = fmt.Errorf("read %s: %w", path, err)
		}
		text = string(data)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyInput
	}
	return text, nil
}

func isImagePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	default:
		return false
	}
}
