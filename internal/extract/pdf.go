package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

func extractPDF(data []byte) (text string, err error) {
	// The pdf parser panics on some malformed files instead of returning an
	// error.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: malformed pdf: %v", ErrCorruptDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: not a valid pdf: %v", ErrCorruptDocument, err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: cannot extract pdf text: %v", ErrCorruptDocument, err)
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("%w: cannot read pdf text: %v", ErrCorruptDocument, err)
	}

	return strings.TrimSpace(buf.String()), nil
}
