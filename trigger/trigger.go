// Package trigger asks the cache manager to store media ahead of need:
// the media just rendered, and tomorrow's media before the day turns.
package trigger

import (
	"context"
	"time"

	"github.com/always-cache/media-edge/core"
	"github.com/always-cache/media-edge/locator"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Poster delivers a message to the cache manager without waiting for it to be handled.
// *core.Manager implements it in-process, HTTPPoster over the edge server.
type Poster interface {
	PostMessage(msg core.Message) bool
}

// WaitPoster is a Poster that can wait until the message is queued.
// Batches posted by the trigger use it so they never overrun the manager's queue.
type WaitPoster interface {
	Poster
	PostMessageContext(ctx context.Context, msg core.Message) bool
}

type Config struct {
	Poster  Poster
	Locator locator.Locator
	// Regions to pre-stage. All regions if empty.
	Regions []locator.Region
	// Languages to pre-stage. The default language if empty.
	Languages []string
	// PreferAnimated also pre-stages the animated variant.
	PreferAnimated bool
	Logger         *zerolog.Logger
}

type Trigger struct {
	poster         Poster
	loc            locator.Locator
	regions        []locator.Region
	languages      []string
	preferAnimated bool
	log            zerolog.Logger
}

func New(config Config) *Trigger {
	t := &Trigger{
		poster:         config.Poster,
		loc:            config.Locator,
		regions:        config.Regions,
		languages:      config.Languages,
		preferAnimated: config.PreferAnimated,
	}
	if config.Logger == nil {
		t.log = log.With().Str("component", "trigger").Logger()
	} else {
		t.log = config.Logger.With().Str("component", "trigger").Logger()
	}
	if len(t.regions) == 0 {
		t.regions = locator.Regions
	}
	if len(t.languages) == 0 {
		t.languages = []string{locator.DefaultLanguage}
	}
	return t
}

// CacheTodayImage posts a CACHE_TODAY_IMAGE message for url.
func (t *Trigger) CacheTodayImage(url string) bool {
	if url == "" {
		return false
	}
	ok := t.poster.PostMessage(core.Message{Type: core.MessageCacheTodayImage, ImageURL: url})
	t.log.Trace().Str("url", url).Bool("queued", ok).Msg("Posted cache message")
	return ok
}

// CacheRendered is called after a successful first render of url.
// For an animation the static variant is cached too, since it is the first fallback.
// It returns the number of messages queued.
func (t *Trigger) CacheRendered(url string) int {
	n := 0
	if t.CacheTodayImage(url) {
		n++
	}
	if static := t.loc.StaticURL(url); static != url && t.CacheTodayImage(static) {
		n++
	}
	return n
}

// PrestageTomorrow posts tomorrow's media URL for every configured region and language.
// If the poster is a WaitPoster, every post waits for room until ctx is done.
// It returns the number of messages queued.
func (t *Trigger) PrestageTomorrow(ctx context.Context, now time.Time) int {
	tomorrow := locator.Today(now).Tomorrow()
	n, total := 0, 0
	for _, region := range t.regions {
		for _, lang := range t.languages {
			urls := []string{t.loc.Resolve(tomorrow, string(region), lang, false)}
			if t.preferAnimated {
				urls = append(urls, t.loc.Resolve(tomorrow, string(region), lang, true))
			}
			for _, u := range urls {
				total++
				if t.post(ctx, u) {
					n++
				}
			}
		}
	}
	t.log.Debug().Str("day", tomorrow.String()).Int("queued", n).Int("total", total).Msg("Pre-staged tomorrow's media")
	return n
}

func (t *Trigger) post(ctx context.Context, url string) bool {
	msg := core.Message{Type: core.MessageCacheTodayImage, ImageURL: url}
	var ok bool
	if wp, isWait := t.poster.(WaitPoster); isWait {
		ok = wp.PostMessageContext(ctx, msg)
	} else {
		ok = t.poster.PostMessage(msg)
	}
	t.log.Trace().Str("url", url).Bool("queued", ok).Msg("Posted cache message")
	return ok
}
