package core

import (
	"context"
	"net/http"

	"github.com/always-cache/media-edge/metrics"
	cachekey "github.com/always-cache/media-edge/pkg/cache-key"

	"github.com/rs/zerolog"
)

// MessageCacheTodayImage asks the manager to fetch and store a media URL.
const MessageCacheTodayImage = "CACHE_TODAY_IMAGE"

// Message is sent from a page to the manager. No reply is ever sent.
type Message struct {
	Type     string `json:"type"`
	ImageURL string `json:"imageUrl"`
}

// PostMessage queues a message for the background worker.
// It never blocks: the message is dropped if the manager is not active
// or the queue is full. It reports whether the message was queued.
func (m *Manager) PostMessage(msg Message) bool {
	if m.State() != StateActive {
		metrics.RecordMessage("dropped")
		m.log.Debug().Str("type", msg.Type).Msg("Manager not active, dropping message")
		return false
	}
	select {
	case m.messages <- msg:
		return true
	default:
		metrics.RecordMessage("dropped")
		m.log.Warn().Str("type", msg.Type).Msg("Message queue full, dropping message")
		return false
	}
}

// PostMessageContext is like PostMessage but waits for room in the queue
// until ctx is done or the manager is closed.
func (m *Manager) PostMessageContext(ctx context.Context, msg Message) bool {
	if m.State() != StateActive {
		metrics.RecordMessage("dropped")
		m.log.Debug().Str("type", msg.Type).Msg("Manager not active, dropping message")
		return false
	}
	select {
	case m.messages <- msg:
		return true
	case <-ctx.Done():
		metrics.RecordMessage("dropped")
		m.log.Debug().Err(ctx.Err()).Str("type", msg.Type).Msg("Gave up waiting for message queue")
		return false
	case <-m.ctx.Done():
		metrics.RecordMessage("dropped")
		return false
	}
}

// drainMessages handles queued messages one at a time until the manager is closed.
func (m *Manager) drainMessages() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case msg := <-m.messages:
			m.Dispatch(m.ctx, Event{Kind: EventMessage, Message: msg})
		}
	}
}

// handleMessage fetches the message URL straight from the network and stores it in the media cache.
// URLs outside the media class are rejected. Failures are logged and swallowed.
func (m *Manager) handleMessage(ctx context.Context, ev Event) (*http.Response, error) {
	log := zerolog.Ctx(ctx)
	msg := ev.Message
	if msg.Type != MessageCacheTodayImage || msg.ImageURL == "" {
		log.Debug().Str("type", msg.Type).Msg("Ignoring message")
		metrics.RecordMessage("ignored")
		return nil, nil
	}
	log.UpdateContext(func(c zerolog.Context) zerolog.Context {
		return c.Str("url", msg.ImageURL)
	})

	key, err := cachekey.Parse(msg.ImageURL)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid image url")
		metrics.RecordMessage("failed")
		return nil, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, msg.ImageURL, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Could not create request")
		metrics.RecordMessage("failed")
		return nil, nil
	}
	// only media hosting may be fetched on behalf of a message
	if Classify(req, m.media) != ClassMedia {
		log.Warn().Msg("Rejecting message for a url that is not media")
		metrics.RecordMessage("rejected")
		return nil, nil
	}
	media, err := m.storage.Open(ctx, m.names.Media)
	if err != nil {
		log.Warn().Err(err).Msg("Could not open media cache")
		metrics.RecordMessage("failed")
		return nil, nil
	}
	// media URLs are deterministic, a stored entry never needs a refresh
	if _, ok, err := media.Match(ctx, key); err == nil && ok {
		log.Debug().Msg("Media already cached")
		metrics.RecordMessage("cached")
		return nil, nil
	}

	res, err := m.network.RoundTrip(req)
	if err != nil {
		log.Warn().Err(err).Msg("Proactive fetch failed")
		metrics.RecordMessage("failed")
		return nil, nil
	}
	defer res.Body.Close()
	if !isOK(res) {
		log.Warn().Int("status", res.StatusCode).Msg("Proactive fetch failed")
		metrics.RecordMessage("failed")
		return nil, nil
	}

	if !m.put(ctx, media, key, res) {
		metrics.RecordMessage("failed")
		return nil, nil
	}
	m.evict(ctx, media)
	log.Debug().Msg("Proactively cached media")
	metrics.RecordMessage("stored")
	return nil, nil
}
