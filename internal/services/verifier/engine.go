// -----------------------------------------------------------------------
// Verification Engine - HEAD-then-GET image link verification
// -----------------------------------------------------------------------

package verifier

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/interfaces"
	"github.com/ternarybob/probo/internal/models"
)

// Config holds verification engine settings.
type Config struct {
	// RequestTimeout bounds each HTTP exchange including the body read (default: 5s)
	RequestTimeout time.Duration

	// MaxRedirects is the redirect hop limit per request (default: 5)
	MaxRedirects int

	// MaxBodySize caps the GET body read for decoding (default: 10MB).
	// Larger bodies are truncated, not rejected; metadata decoding only
	// needs the image header.
	MaxBodySize int64

	// UserAgent for HTTP requests
	UserAgent string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 5 * time.Second,
		MaxRedirects:   5,
		MaxBodySize:    10 * 1024 * 1024, // 10MB
		UserAgent:      "probo/1.0 (image link verification)",
	}
}

// sanitizedHeaders is the response header allow list persisted with
// results. Everything else is dropped.
var sanitizedHeaders = []string{
	"content-type",
	"content-length",
	"last-modified",
	"etag",
	"cache-control",
	"expires",
	"x-amz-request-id",
}

// Service verifies that URLs resolve to decodable images. A single
// attempt is HEAD first, then GET with a bounded body read and a decode
// check. Verify never returns a Go error; every outcome is expressed as
// a link status on the result.
type Service struct {
	config  Config
	logger  arbor.ILogger
	client  *http.Client
	decoder interfaces.ImageDecoder
}

// NewService creates a verification engine. A nil decoder selects the
// standard library decoder.
func NewService(config Config, decoder interfaces.ImageDecoder, logger arbor.ILogger) *Service {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 5 * time.Second
	}
	if config.MaxRedirects <= 0 {
		config.MaxRedirects = 5
	}
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = 10 * 1024 * 1024
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultConfig().UserAgent
	}
	if decoder == nil {
		decoder = NewStdDecoder()
	}

	maxRedirects := config.MaxRedirects
	client := &http.Client{
		Timeout: config.RequestTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}

	return &Service{
		config:  config,
		logger:  logger,
		client:  client,
		decoder: decoder,
	}
}

// Verify runs a single verification attempt for the URL.
//
// HEAD runs first as a cheap liveness and content-type probe. A 4xx on
// HEAD is terminal without a GET. A 5xx or transport failure on HEAD is
// not trusted as a verdict because some origins mishandle HEAD, so the
// pipeline falls through to GET. A clean HEAD with an accepted content
// type still proceeds to GET because headers say nothing about whether
// the body actually decodes.
func (s *Service) Verify(ctx context.Context, requestID, rawURL string) *models.VerificationResult {
	startTime := time.Now()
	contextLogger := s.logger.WithCorrelationId(requestID)

	result := &models.VerificationResult{
		RequestID: requestID,
		URL:       rawURL,
	}

	// Reject pre-signed URLs whose signature window already closed
	// before spending a network round trip
	if err := checkPresignExpiry(rawURL, time.Now()); err != nil {
		contextLogger.Debug().Str("url", rawURL).Err(err).Msg("Pre-signed URL expired")
		return s.finish(result, Failure{Err: err}, startTime)
	}

	headResp, headErr := s.do(ctx, http.MethodHead, rawURL)
	if headErr == nil {
		s.captureResponse(result, headResp)
		headResp.Body.Close()

		switch {
		case headResp.StatusCode >= 500:
			// Some origins mishandle HEAD; let GET produce the verdict
			contextLogger.Debug().
				Str("url", rawURL).
				Int("status", headResp.StatusCode).
				Msg("HEAD returned server error, falling through to GET")
		case headResp.StatusCode >= 400:
			return s.finish(result, Failure{StatusCode: headResp.StatusCode}, startTime)
		default:
			if !AllowedMimeType(result.ContentType) {
				return s.finish(result, Failure{
					StatusCode:  headResp.StatusCode,
					ContentType: result.ContentType,
				}, startTime)
			}
		}
	} else {
		contextLogger.Debug().Str("url", rawURL).Err(headErr).Msg("HEAD failed, falling through to GET")
	}

	getResp, getErr := s.do(ctx, http.MethodGet, rawURL)
	if getErr != nil {
		return s.finish(result, Failure{Err: getErr}, startTime)
	}
	defer getResp.Body.Close()
	s.captureResponse(result, getResp)

	if getResp.StatusCode >= 400 {
		return s.finish(result, Failure{StatusCode: getResp.StatusCode}, startTime)
	}
	if !AllowedMimeType(result.ContentType) {
		return s.finish(result, Failure{
			StatusCode:  getResp.StatusCode,
			ContentType: result.ContentType,
		}, startTime)
	}

	body, err := io.ReadAll(io.LimitReader(getResp.Body, s.config.MaxBodySize))
	if err != nil {
		return s.finish(result, Failure{Err: fmt.Errorf("failed to read body: %w", err)}, startTime)
	}
	if result.ContentLengthBytes == 0 {
		result.ContentLengthBytes = int64(len(body))
	}

	format, decodeErr := s.decoder.DecodeMetadata(body)
	if decodeErr != nil {
		return s.finish(result, Failure{
			StatusCode:  getResp.StatusCode,
			ContentType: result.ContentType,
			DecodeErr:   decodeErr,
		}, startTime)
	}

	contextLogger.Debug().
		Str("url", rawURL).
		Str("format", format).
		Int64("size", int64(len(body))).
		Msg("Image verified")

	return s.finish(result, Failure{
		StatusCode:  getResp.StatusCode,
		ContentType: result.ContentType,
	}, startTime)
}

// finish classifies the failure, stamps latency and derives the error
// message. Every Verify exit path runs through here.
func (s *Service) finish(result *models.VerificationResult, f Failure, startTime time.Time) *models.VerificationResult {
	status, retryable := Classify(f)
	result.LinkStatus = status
	result.Retryable = retryable
	result.LatencyMs = time.Since(startTime).Milliseconds()
	result.ErrorMessage = failureMessage(f, status)
	return result
}

// failureMessage derives the human-readable error for a non-ok status.
func failureMessage(f Failure, status models.LinkStatus) string {
	switch {
	case status == models.LinkStatusOK:
		return ""
	case f.Err != nil:
		return f.Err.Error()
	case f.DecodeErr != nil:
		return f.DecodeErr.Error()
	case status == models.LinkStatusInvalidMime:
		if f.ContentType == "" {
			return "missing content type"
		}
		return fmt.Sprintf("disallowed content type: %s", f.ContentType)
	case f.StatusCode >= 400:
		return fmt.Sprintf("HTTP %d", f.StatusCode)
	}
	return ""
}

// do issues a single HTTP request with the engine's client.
func (s *Service) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "image/*")
	return s.client.Do(req)
}

// captureResponse records the sanitized header subset, content type and
// declared length from the most recent response.
func (s *Service) captureResponse(result *models.VerificationResult, resp *http.Response) {
	headers := make(map[string]string)
	for _, name := range sanitizedHeaders {
		if value := resp.Header.Get(name); value != "" {
			headers[name] = value
		}
	}
	result.Headers = headers
	result.ContentType = resp.Header.Get("Content-Type")
	if resp.ContentLength > 0 {
		result.ContentLengthBytes = resp.ContentLength
	}
}

// checkPresignExpiry rejects pre-signed URLs whose signature window has
// already closed. Covers AWS SigV4 style (X-Amz-Date plus X-Amz-Expires)
// and plain epoch Expires query parameters. Unparseable values are left
// for the origin to judge.
func checkPresignExpiry(rawURL string, now time.Time) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	query := parsed.Query()

	dateStr := query.Get("X-Amz-Date")
	expiresStr := query.Get("X-Amz-Expires")
	if dateStr != "" && expiresStr != "" {
		signedAt, parseErr := time.Parse("20060102T150405Z", dateStr)
		seconds, atoiErr := strconv.Atoi(expiresStr)
		if parseErr == nil && atoiErr == nil {
			expiry := signedAt.Add(time.Duration(seconds) * time.Second)
			if now.After(expiry) {
				return fmt.Errorf("pre-signed URL expired at %s", expiry.UTC().Format(time.RFC3339))
			}
		}
	}

	if epochStr := query.Get("Expires"); epochStr != "" {
		if epoch, parseErr := strconv.ParseInt(epochStr, 10, 64); parseErr == nil {
			expiry := time.Unix(epoch, 0)
			if now.After(expiry) {
				return fmt.Errorf("pre-signed URL expired at %s", expiry.UTC().Format(time.RFC3339))
			}
		}
	}

	return nil
}
