package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/always-cache/media-edge/core"

	"github.com/rs/zerolog/log"
)

const defaultPostTimeout = 10 * time.Second

// HTTPPoster posts messages to the message endpoint of an edge server.
type HTTPPoster struct {
	// Endpoint is the absolute URL of the message endpoint.
	Endpoint string
	// Client defaults to http.DefaultClient.
	Client *http.Client
	// Timeout of one post, 10 seconds if zero.
	Timeout time.Duration
}

// PostMessage sends msg and reports whether the edge accepted it.
// Errors are logged and swallowed.
func (p HTTPPoster) PostMessage(msg core.Message) bool {
	return p.PostMessageContext(context.Background(), msg)
}

// PostMessageContext is like PostMessage, bounded by ctx as well as the timeout.
func (p HTTPPoster) PostMessageContext(ctx context.Context, msg core.Message) bool {
	body, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("Could not encode message")
		return false
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultPostTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		log.Error().Err(err).Str("endpoint", p.Endpoint).Msg("Could not create message request")
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", p.Endpoint).Msg("Could not post message")
		return false
	}
	res.Body.Close()
	if res.StatusCode != http.StatusAccepted {
		log.Warn().Int("status", res.StatusCode).Str("endpoint", p.Endpoint).Msg("Message not accepted")
		return false
	}
	return true
}
