package ocr

import (
	"bytes"
	"encoding/base64"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultMIME is assumed when the payload cannot be identified.
const DefaultMIME = "image/jpeg"

// sniffBytes is enough of the payload for every registered decoder's header.
const sniffBytes = 64 << 10

// SniffMIME identifies the image format of a base64 payload by decoding its
// header only. Unknown or undecodable payloads report DefaultMIME.
func SniffMIME(b64 string) string {
	head := b64
	if n := sniffBytes * 4 / 3; len(head) > n {
		head = head[:n-n%4]
	}
	raw, err := io.ReadAll(base64.NewDecoder(base64.StdEncoding, strings.NewReader(head)))
	if len(raw) == 0 && err != nil {
		return DefaultMIME
	}
	return MIMEFromBytes(raw)
}

// MIMEFromBytes identifies the image format of raw bytes.
func MIMEFromBytes(b []byte) string {
	_, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return DefaultMIME
	}
	return "image/" + format
}

// DecodeDimensions returns width and height of raw image bytes, for logging and limits.
func DecodeDimensions(b []byte) (int, int, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
