package trigger

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/always-cache/media-edge/cache"
	"github.com/always-cache/media-edge/core"
	"github.com/always-cache/media-edge/locator"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPoster struct {
	mu       sync.Mutex
	messages []core.Message
	reject   bool
}

func (p *recordingPoster) PostMessage(msg core.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false
	}
	p.messages = append(p.messages, msg)
	return true
}

func (p *recordingPoster) urls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	urls := make([]string, 0, len(p.messages))
	for _, m := range p.messages {
		urls = append(urls, m.ImageURL)
	}
	return urls
}

func newTrigger(p Poster, config Config) *Trigger {
	logger := zerolog.Nop()
	config.Poster = p
	config.Locator = locator.New("https://media.example.com")
	config.Logger = &logger
	return New(config)
}

func TestCacheTodayImage(t *testing.T) {
	p := &recordingPoster{}
	tr := newTrigger(p, Config{})

	assert.True(t, tr.CacheTodayImage("https://media.example.com/eu/fr/2024-03-15"))
	assert.False(t, tr.CacheTodayImage(""))
	require.Len(t, p.messages, 1)
	assert.Equal(t, core.Message{Type: "CACHE_TODAY_IMAGE", ImageURL: "https://media.example.com/eu/fr/2024-03-15"}, p.messages[0])
}

func TestCacheRenderedAlsoCachesStaticVariant(t *testing.T) {
	p := &recordingPoster{}
	tr := newTrigger(p, Config{})

	assert.Equal(t, 2, tr.CacheRendered("https://media.example.com/us/en/2024-03-15.mp4"))
	assert.Equal(t, 1, tr.CacheRendered("https://media.example.com/us/en/2024-03-15"))
	assert.Equal(t, []string{
		"https://media.example.com/us/en/2024-03-15.mp4",
		"https://media.example.com/us/en/2024-03-15",
		"https://media.example.com/us/en/2024-03-15",
	}, p.urls())
}

func TestPrestageTomorrow(t *testing.T) {
	p := &recordingPoster{}
	tr := newTrigger(p, Config{
		Regions:   []locator.Region{locator.RegionEU, locator.RegionUS},
		Languages: []string{"fr", "EN"},
	})
	now := time.Date(2024, 12, 31, 22, 0, 0, 0, time.UTC)

	assert.Equal(t, 4, tr.PrestageTomorrow(context.Background(), now))
	assert.Equal(t, []string{
		"https://media.example.com/eu/fr/2025-01-01",
		"https://media.example.com/eu/en/2025-01-01",
		"https://media.example.com/us/fr/2025-01-01",
		"https://media.example.com/us/en/2025-01-01",
	}, p.urls())
}

func TestPrestageDefaultsAndAnimated(t *testing.T) {
	p := &recordingPoster{}
	tr := newTrigger(p, Config{PreferAnimated: true})

	assert.Equal(t, 2*len(locator.Regions), tr.PrestageTomorrow(context.Background(), time.Date(2024, 2, 28, 12, 0, 0, 0, time.UTC)))
	assert.Contains(t, p.urls(), "https://media.example.com/global/en/2024-02-29")
	assert.Contains(t, p.urls(), "https://media.example.com/ap/en/2024-02-29.mp4")
}

func TestPrestageCountsOnlyQueued(t *testing.T) {
	p := &recordingPoster{reject: true}
	tr := newTrigger(p, Config{})
	assert.Zero(t, tr.PrestageTomorrow(context.Background(), time.Now()))
}

func TestHTTPPoster(t *testing.T) {
	var got core.Message
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/_edge/message", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	p := HTTPPoster{Endpoint: server.URL + "/_edge/message", Client: server.Client()}
	msg := core.Message{Type: core.MessageCacheTodayImage, ImageURL: "https://media.example.com/ap/ja/2024-03-16"}
	assert.True(t, p.PostMessage(msg))
	assert.Equal(t, msg, got)
}

func TestHTTPPosterSwallowsErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	p := HTTPPoster{Endpoint: server.URL, Client: server.Client()}
	msg := core.Message{Type: core.MessageCacheTodayImage, ImageURL: "https://media.example.com/x"}
	assert.False(t, p.PostMessage(msg))

	server.Close()
	assert.False(t, p.PostMessage(msg))
}

func TestSchedulerRunsUntilCancelled(t *testing.T) {
	p := &recordingPoster{}
	tr := newTrigger(p, Config{Regions: []locator.Region{locator.RegionEU}})
	s := &Scheduler{
		Trigger:  tr,
		Interval: 5 * time.Millisecond,
		Now:      func() time.Time { return time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC) },
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(p.urls()) >= 2 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, "https://media.example.com/eu/en/2024-03-16", p.urls()[0])
}

func TestManagerIsPoster(t *testing.T) {
	var _ WaitPoster = (*core.Manager)(nil)
	var _ WaitPoster = (*core.Runtime)(nil)
	var _ WaitPoster = HTTPPoster{}
}

// slowNetwork answers every request after a delay.
type slowNetwork struct {
	delay time.Duration
}

func (n slowNetwork) RoundTrip(req *http.Request) (*http.Response, error) {
	select {
	case <-time.After(n.delay):
	case <-req.Context().Done():
		return nil, req.Context().Err()
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Proto:      "HTTP/1.1",
		ProtoMajor: 1,
		ProtoMinor: 1,
		Header:     http.Header{"Content-Type": []string{"image/jpeg"}},
		Body:       io.NopCloser(strings.NewReader("image " + req.URL.Path)),
		Request:    req,
	}, nil
}

func TestPrestageWaitsForManagerQueue(t *testing.T) {
	logger := zerolog.Nop()
	storage := cache.NewMemStorage()
	m, err := core.CreateManager(core.Config{
		Storage:    storage,
		Network:    slowNetwork{delay: 5 * time.Millisecond},
		MediaHosts: []string{"media.example.com"},
		Logger:     &logger,
	})
	require.NoError(t, err)
	var rt core.Runtime
	t.Cleanup(func() { rt.Close() })
	require.NoError(t, rt.Register(context.Background(), m))

	// 4 regions, 3 languages, static and animated: more than the queue holds
	tr := newTrigger(&rt, Config{Languages: []string{"en", "fr", "ja"}, PreferAnimated: true})
	assert.Equal(t, 24, tr.PrestageTomorrow(context.Background(), time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)))

	require.Eventually(t, func() bool {
		media, err := storage.Open(context.Background(), m.Names().Media)
		require.NoError(t, err)
		keys, err := media.Keys(context.Background())
		require.NoError(t, err)
		return len(keys) == 24
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPrestageStopsWaitingWhenCancelled(t *testing.T) {
	logger := zerolog.Nop()
	m, err := core.CreateManager(core.Config{
		Storage:    cache.NewMemStorage(),
		Network:    slowNetwork{delay: time.Second},
		MediaHosts: []string{"media.example.com"},
		Logger:     &logger,
	})
	require.NoError(t, err)
	var rt core.Runtime
	t.Cleanup(func() { rt.Close() })
	require.NoError(t, rt.Register(context.Background(), m))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	tr := newTrigger(&rt, Config{Languages: []string{"en", "fr", "ja"}, PreferAnimated: true})
	queued := tr.PrestageTomorrow(ctx, time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC))
	assert.Less(t, queued, 24)
	assert.GreaterOrEqual(t, queued, 16)
}
