package fallback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/always-cache/media-edge/locator"
	cachestatus "github.com/always-cache/media-edge/pkg/cache-status"

	"github.com/rs/zerolog"
)

var errSynthesized = errors.New("cache served a placeholder")

// Outcome is the result of driving a fallback chain to completion.
type Outcome struct {
	URL         string
	State       State
	Attempts    int
	ContentType string
	Body        []byte
}

// HTTPSink is a Sink that renders by fetching the bound source over HTTP.
// Requests are marked as image or video fetches so an intercepting cache classifies them as media.
// A placeholder synthesized by the cache counts as a failed load.
type HTTPSink struct {
	Client *http.Client
	src    string
}

func (s *HTTPSink) SetSource(url string) {
	s.src = url
}

// Source returns the most recently bound URL.
func (s *HTTPSink) Source() string {
	return s.src
}

func (s *HTTPSink) fetch(ctx context.Context) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.src, nil)
	if err != nil {
		return nil, nil, err
	}
	dest := "image"
	if locator.KindFromURL(s.src) == locator.KindVideo {
		dest = "video"
	}
	req.Header.Set("Sec-Fetch-Dest", dest)
	req.Header.Set("Sec-Fetch-Mode", "no-cors")
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return res, nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return res, body, fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	// a placeholder synthesized by the cache is not the media we asked for
	if cs, ok := cachestatus.FromResponse(res); ok && cs.Detail == cachestatus.DetailPlaceholder {
		return res, body, errSynthesized
	}
	return res, body, nil
}

// Load runs a fresh fallback chain for req, fetching every candidate through client.
// It returns the first candidate that loaded, or the placeholder.
// A cancelled context stops the chain and is returned as the error.
// Logging goes to the logger of ctx.
func Load(ctx context.Context, client *http.Client, loc locator.Locator, req Request) (Outcome, error) {
	sink := &HTTPSink{Client: client}
	c := New(loc, req, sink, zerolog.Ctx(ctx))
	c.Start()

	var out Outcome
	for c.State() == StateRequesting {
		if err := ctx.Err(); err != nil {
			return Outcome{URL: c.Current(), State: c.State(), Attempts: c.Attempts()}, err
		}
		res, body, err := sink.fetch(ctx)
		if err != nil {
			c.log.Debug().Err(err).Str("url", sink.Source()).Msg("Could not load media")
			c.OnError()
			continue
		}
		out.ContentType = res.Header.Get("Content-Type")
		out.Body = body
		c.OnLoad()
	}

	out.URL = c.Current()
	out.State = c.State()
	out.Attempts = c.Attempts()
	if out.State == StatePlaceholder {
		out.ContentType = "image/svg+xml"
		out.Body = PlaceholderSVG()
	}
	return out, nil
}
