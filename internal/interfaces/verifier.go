package interfaces

import (
	"context"

	"github.com/ternarybob/probo/internal/models"
)

// Verifier checks that a URL resolves to a decodable image.
type Verifier interface {
	// Verify runs the verification pipeline for a single attempt. It
	// always returns a result; network, HTTP and decode failures are
	// reported through the result's link status, never as a Go error.
	Verify(ctx context.Context, requestID, url string) *models.VerificationResult
}

// ImageDecoder validates that a response body is a decodable image.
// The engine treats it as replaceable so callers can swap in stricter
// or format-specific validation.
type ImageDecoder interface {
	// DecodeMetadata returns the detected image format (jpeg, png, ...)
	// or an error when the bytes cannot be decoded as an image.
	DecodeMetadata(data []byte) (string, error)
}
