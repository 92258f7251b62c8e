package verifier

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/probo/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	config := DefaultConfig()
	config.RequestTimeout = 2 * time.Second
	return NewService(config, nil, arbor.NewLogger())
}

func TestVerify_ValidImage(t *testing.T) {
	jpegBytes := encodeJPEG(t)
	var heads, gets atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			heads.Add(1)
		} else {
			gets.Add(1)
		}
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("X-Internal-Secret", "do-not-leak")
		w.Write(jpegBytes)
	}))
	defer server.Close()

	service := newTestService(t)
	result := service.Verify(context.Background(), "req-1", server.URL)

	require.NotNil(t, result)
	assert.Equal(t, models.LinkStatusOK, result.LinkStatus)
	assert.False(t, result.Retryable)
	assert.Empty(t, result.ErrorMessage)
	assert.Equal(t, "image/jpeg", result.ContentType)
	assert.Equal(t, int64(len(jpegBytes)), result.ContentLengthBytes)
	assert.GreaterOrEqual(t, result.LatencyMs, int64(0))
	assert.Equal(t, int32(1), heads.Load())
	assert.Equal(t, int32(1), gets.Load(), "clean HEAD must still be followed by a GET decode")
	assert.Equal(t, `"abc123"`, result.Headers["etag"])
	_, leaked := result.Headers["x-internal-secret"]
	assert.False(t, leaked, "only allow listed headers should be recorded")
}

func TestVerify_NotFound(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	result := newTestService(t).Verify(context.Background(), "req-2", server.URL)

	assert.Equal(t, models.LinkStatusNotFound, result.LinkStatus)
	assert.False(t, result.Retryable)
	assert.Equal(t, "HTTP 404", result.ErrorMessage)
	assert.Equal(t, int32(1), requests.Load(), "a 404 on HEAD should not trigger a GET")
}

func TestVerify_Forbidden(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	result := newTestService(t).Verify(context.Background(), "req-3", server.URL)

	assert.Equal(t, models.LinkStatusForbidden, result.LinkStatus)
	assert.False(t, result.Retryable)
	assert.Equal(t, "HTTP 403", result.ErrorMessage)
}

func TestVerify_ServerError(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	result := newTestService(t).Verify(context.Background(), "req-4", server.URL)

	assert.Equal(t, models.LinkStatusNetworkError, result.LinkStatus)
	assert.True(t, result.Retryable)
	assert.Equal(t, int32(2), requests.Load(), "a 5xx on HEAD should fall through to GET")
}

func TestVerify_InvalidMimeSkipsDownload(t *testing.T) {
	var gets atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := newTestService(t).Verify(context.Background(), "req-5", server.URL)

	assert.Equal(t, models.LinkStatusInvalidMime, result.LinkStatus)
	assert.False(t, result.Retryable)
	assert.Contains(t, result.ErrorMessage, "application/pdf")
	assert.Equal(t, int32(0), gets.Load(), "a disallowed MIME on HEAD should skip the GET")
}

func TestVerify_DecodeError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("this is not a jpeg body"))
	}))
	defer server.Close()

	result := newTestService(t).Verify(context.Background(), "req-6", server.URL)

	assert.Equal(t, models.LinkStatusDecodeError, result.LinkStatus)
	assert.False(t, result.Retryable)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestVerify_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	config := DefaultConfig()
	config.RequestTimeout = 100 * time.Millisecond
	service := NewService(config, nil, arbor.NewLogger())

	result := service.Verify(context.Background(), "req-7", server.URL)

	assert.Equal(t, models.LinkStatusTimeout, result.LinkStatus)
	assert.True(t, result.Retryable)
	assert.NotEmpty(t, result.ErrorMessage)
}

func TestVerify_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	result := newTestService(t).Verify(context.Background(), "req-8", url)

	assert.Equal(t, models.LinkStatusNetworkError, result.LinkStatus)
	assert.True(t, result.Retryable)
}

func TestVerify_ExpiredPresign(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	// Epoch 1000000000 is 2001, long expired
	url := fmt.Sprintf("%s/photo.jpg?Expires=1000000000&Signature=sig", server.URL)
	result := newTestService(t).Verify(context.Background(), "req-9", url)

	assert.Equal(t, models.LinkStatusExpiredPresign, result.LinkStatus)
	assert.False(t, result.Retryable)
	assert.Contains(t, result.ErrorMessage, "expired")
	assert.Equal(t, int32(0), requests.Load(), "expired URLs should not be fetched")
}

func TestVerify_RedirectLimit(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, server.URL+"/loop", http.StatusFound)
	}))
	defer server.Close()

	result := newTestService(t).Verify(context.Background(), "req-10", server.URL)

	assert.Equal(t, models.LinkStatusNetworkError, result.LinkStatus)
	assert.Contains(t, result.ErrorMessage, "redirects")
}

func TestCheckPresignExpiry(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		url     string
		expired bool
	}{
		{"no presign params", "https://cdn.example.com/a.jpg", false},
		{"future epoch expires", "https://cdn.example.com/a.jpg?Expires=2000000000", false},
		{"past epoch expires", "https://cdn.example.com/a.jpg?Expires=1000000000", true},
		{"sigv4 still valid", "https://cdn.example.com/a.jpg?X-Amz-Date=20260601T110000Z&X-Amz-Expires=7200", false},
		{"sigv4 expired", "https://cdn.example.com/a.jpg?X-Amz-Date=20260601T100000Z&X-Amz-Expires=3600", true},
		{"unparseable date", "https://cdn.example.com/a.jpg?X-Amz-Date=garbage&X-Amz-Expires=3600", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkPresignExpiry(tt.url, now)
			if tt.expired {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
