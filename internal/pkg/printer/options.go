package printer

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"io"
)

// PDFOptions is passed through to Page.printToPDF unmodified; the
// orchestrator never interprets its fields.
type PDFOptions map[string]interface{}

// Compress applies the wire-level compress=true transform:
// base64(deflate(base64-decoded-pdf)).
func Compress(base64PDF string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(base64PDF)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(w, bytes.NewReader(raw)); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
