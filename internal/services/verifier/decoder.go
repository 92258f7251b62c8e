package verifier

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// StdDecoder validates image bytes with the standard library decoders.
// The blank imports register jpeg, png and gif plus the extended bmp,
// tiff and webp formats with image.DecodeConfig.
type StdDecoder struct{}

// NewStdDecoder returns the default image decoder.
func NewStdDecoder() *StdDecoder {
	return &StdDecoder{}
}

// DecodeMetadata parses the image header and returns the detected format.
// Only the header is read; pixel data is not decoded.
func (d *StdDecoder) DecodeMetadata(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image body")
	}
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image metadata: %w", err)
	}
	return format, nil
}
