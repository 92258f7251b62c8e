package verifier

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"testing"
)

func encodeJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8)), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

func encodePNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestStdDecoder_DecodeMetadata(t *testing.T) {
	decoder := NewStdDecoder()

	format, err := decoder.DecodeMetadata(encodeJPEG(t))
	if err != nil {
		t.Fatalf("jpeg should decode: %v", err)
	}
	if format != "jpeg" {
		t.Errorf("format = %s, want jpeg", format)
	}

	format, err = decoder.DecodeMetadata(encodePNG(t))
	if err != nil {
		t.Fatalf("png should decode: %v", err)
	}
	if format != "png" {
		t.Errorf("format = %s, want png", format)
	}
}

func TestStdDecoder_RejectsNonImage(t *testing.T) {
	decoder := NewStdDecoder()

	if _, err := decoder.DecodeMetadata([]byte("%PDF-1.4 three pages of text")); err == nil {
		t.Error("PDF bytes should not decode as an image")
	}
	if _, err := decoder.DecodeMetadata([]byte("<html><body>error</body></html>")); err == nil {
		t.Error("HTML bytes should not decode as an image")
	}
	if _, err := decoder.DecodeMetadata(nil); err == nil {
		t.Error("empty body should not decode")
	}
}

func TestStdDecoder_RejectsTruncatedImage(t *testing.T) {
	decoder := NewStdDecoder()

	jpegBytes := encodeJPEG(t)
	if _, err := decoder.DecodeMetadata(jpegBytes[:3]); err == nil {
		t.Error("truncated jpeg header should not decode")
	}

	pngBytes := encodePNG(t)
	if _, err := decoder.DecodeMetadata(pngBytes[:10]); err == nil {
		t.Error("truncated png header should not decode")
	}
}
