// -----------------------------------------------------------------------
// Classifier - maps verification failures onto link statuses
// -----------------------------------------------------------------------

package verifier

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/ternarybob/probo/internal/models"
)

// Failure describes the outcome of a verification attempt for
// classification. Fields are filled in as pipeline stages complete; zero
// values mean the stage was not reached. Err and StatusCode are mutually
// exclusive: a transport error means no response arrived.
type Failure struct {
	Err         error  // Transport error from the final HTTP exchange
	StatusCode  int    // Final HTTP status code, 0 when no response arrived
	ContentType string // Response Content-Type header
	DecodeErr   error  // Image decode error, nil when decoding succeeded or was not reached
}

// Classify maps a failure descriptor onto a link status and a retryable
// verdict. It is pure: the same input always yields the same output.
//
// Precedence, first match wins:
//  1. connection refused or DNS failure -> network_error, retryable
//  2. timeout or aborted request       -> timeout, retryable
//  3. HTTP 5xx                         -> network_error, retryable
//  4. HTTP 404                         -> not_found
//  5. HTTP 403                         -> forbidden
//  6. other HTTP 4xx                   -> network_error, not retryable
//  7. expired pre-signed URL           -> expired_presign
//  8. absent or disallowed MIME type   -> invalid_mime
//  9. image decode failure             -> decode_error
// 10. none of the above                -> ok
func Classify(f Failure) (models.LinkStatus, bool) {
	if f.Err != nil {
		switch {
		case isConnectionError(f.Err):
			return models.LinkStatusNetworkError, true
		case isTimeoutError(f.Err):
			return models.LinkStatusTimeout, true
		case isExpiredPresignError(f.Err):
			return models.LinkStatusExpiredPresign, false
		default:
			// Unrecognized transport failures are treated as transient
			return models.LinkStatusNetworkError, true
		}
	}

	switch {
	case f.StatusCode >= 500:
		return models.LinkStatusNetworkError, true
	case f.StatusCode == http.StatusNotFound:
		return models.LinkStatusNotFound, false
	case f.StatusCode == http.StatusForbidden:
		return models.LinkStatusForbidden, false
	case f.StatusCode >= 400:
		return models.LinkStatusNetworkError, false
	}

	if !AllowedMimeType(f.ContentType) {
		return models.LinkStatusInvalidMime, false
	}

	if f.DecodeErr != nil {
		return models.LinkStatusDecodeError, false
	}

	return models.LinkStatusOK, false
}

// allowedMimeTypes is the closed set of image content types accepted for
// annotation work.
var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

// AllowedMimeType reports whether contentType names an accepted image
// format. Media type parameters such as charset are ignored.
func AllowedMimeType(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType := contentType
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	return allowedMimeTypes[strings.ToLower(strings.TrimSpace(mediaType))]
}

// isConnectionError matches connection refused and DNS resolution
// failures. Dial timeouts are handled by isTimeoutError instead.
func isConnectionError(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}

// isTimeoutError matches deadline expiry, cancellation and network
// timeouts.
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// isExpiredPresignError matches errors reporting an expired pre-signed
// URL. Matching is on message text because expiry is detected before any
// HTTP exchange takes place.
func isExpiredPresignError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "expired")
}
