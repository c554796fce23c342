package fallback

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/always-cache/media-edge/locator"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFallsBackToYesterday(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		dests []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		dests = append(dests, r.Header.Get("Sec-Fetch-Dest"))
		mu.Unlock()
		if r.URL.Path == "/us/en/2024-03-14" {
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("yesterday"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	out, err := Load(context.Background(), server.Client(), locator.New(server.URL), Request{
		Day:            mustParseDay("2024-03-15"),
		Region:         "us",
		Language:       "en",
		PreferAnimated: true,
	})
	require.NoError(t, err)

	assert.Equal(t, StateSuccess, out.State)
	assert.Equal(t, server.URL+"/us/en/2024-03-14", out.URL)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, "yesterday", string(out.Body))
	assert.Equal(t, "image/jpeg", out.ContentType)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/us/en/2024-03-15.mp4", "/us/en/2024-03-15", "/us/en/2024-03-14"}, paths)
	assert.Equal(t, []string{"video", "image", "image"}, dests)
}

func TestLoadEndsOnPlaceholder(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	out, err := Load(context.Background(), server.Client(), locator.New(server.URL), Request{
		Day:            mustParseDay("2024-03-15"),
		PreferAnimated: true,
	})
	require.NoError(t, err)

	assert.Equal(t, StatePlaceholder, out.State)
	assert.Equal(t, Placeholder, out.URL)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "image/svg+xml", out.ContentType)
	assert.Contains(t, string(out.Body), "Media unavailable")
}

func TestLoadStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := Load(ctx, http.DefaultClient, locator.New("http://127.0.0.1:1"), Request{
		Day: mustParseDay("2024-03-15"),
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateRequesting, out.State)
	assert.Equal(t, 1, out.Attempts)
}

func TestLoadSkipsSynthesizedPlaceholder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/eu/fr/2024-03-15" {
			w.Header().Set("Cache-Status", "MediaEdge; fwd=uri-miss; detail=placeholder")
			w.Header().Set("Content-Type", "image/svg+xml")
			w.Write([]byte("<svg/>"))
			return
		}
		w.Write([]byte("yesterday"))
	}))
	defer server.Close()

	out, err := Load(context.Background(), server.Client(), locator.New(server.URL), Request{
		Day:      mustParseDay("2024-03-15"),
		Region:   "eu",
		Language: "fr",
	})
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, out.State)
	assert.Equal(t, server.URL+"/eu/fr/2024-03-14", out.URL)
	assert.Equal(t, "yesterday", string(out.Body))
}

func TestLoadLogsToContextLogger(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	var buf bytes.Buffer
	logger := zerolog.New(&buf).With().Str("request", "abc").Logger()
	out, err := Load(logger.WithContext(context.Background()), server.Client(), locator.New(server.URL), Request{
		Day:    mustParseDay("2024-03-15"),
		Region: "eu",
	})
	require.NoError(t, err)
	assert.Equal(t, StatePlaceholder, out.State)
	assert.Contains(t, buf.String(), `"request":"abc"`)
	assert.Contains(t, buf.String(), `"region":"eu"`)
}
