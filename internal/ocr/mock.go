package ocr

import "context"

type mockReader struct {
	text string
}

// NewMockReader returns a Reader that yields fixed text for any image.
func NewMockReader(text string) Reader {
	return &mockReader{text: text}
}

func (m *mockReader) ReadImage(ctx context.Context, path string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return m.text, nil
}
