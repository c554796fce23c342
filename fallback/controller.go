// Package fallback implements the degrade chain used when media of the day fails to load.
//
// A Controller walks, in strict order, animated → static → yesterday's static →
// placeholder. Each step is a single attempt; the placeholder is terminal.
package fallback

import (
	"encoding/base64"

	"github.com/always-cache/media-edge/locator"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const placeholderSVG = `<svg width="800" height="400" xmlns="http://www.w3.org/2000/svg">` +
	`<rect width="800" height="400" fill="#f3f4f6"/>` +
	`<text x="400" y="200" text-anchor="middle" fill="#6b7280" font-family="Arial" font-size="24">` +
	`Media unavailable</text></svg>`

// Placeholder is the inline graphic bound once every candidate failed.
// It never touches the network.
var Placeholder = "data:image/svg+xml;base64," + base64.StdEncoding.EncodeToString([]byte(placeholderSVG))

// PlaceholderSVG returns the raw placeholder document.
func PlaceholderSVG() []byte {
	return []byte(placeholderSVG)
}

// Sink is where the controller binds the URL to render.
// The sink reports back through Controller.OnLoad and Controller.OnError,
// and must tolerate being re-pointed at a new source at any time.
type Sink interface {
	SetSource(url string)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(url string)

func (f SinkFunc) SetSource(url string) { f(url) }

type State int

const (
	StateIdle State = iota
	StateRequesting
	StateSuccess
	StatePlaceholder
)

func (s State) String() string {
	switch s {
	case StateRequesting:
		return "requesting"
	case StateSuccess:
		return "success"
	case StatePlaceholder:
		return "placeholder"
	}
	return "idle"
}

// step is a position in the chain.
type step int

const (
	stepAnimated step = iota
	stepStatic
	stepYesterday
	stepPlaceholder
)

// FallbackState records which candidates a render has bound.
type FallbackState struct {
	TriedAnimated    bool
	TriedStatic      bool
	TriedYesterday   bool
	TriedPlaceholder bool
}

// Request describes the media a render wants.
type Request struct {
	Day            locator.Day
	Region         string
	Language       string
	PreferAnimated bool
}

// Controller drives one render attempt. It is not safe for concurrent use;
// a render's load and error callbacks arrive one at a time.
// A manual retry must use a new Controller.
type Controller struct {
	loc      locator.Locator
	req      Request
	sink     Sink
	state    State
	step     step
	current  string
	tried    map[string]struct{}
	fs       FallbackState
	attempts int
	log      zerolog.Logger
}

// New creates a controller for one render. The global logger is used if logger is nil.
func New(loc locator.Locator, req Request, sink Sink, logger *zerolog.Logger) *Controller {
	if logger == nil {
		logger = &log.Logger
	}
	return &Controller{
		loc:   loc,
		req:   req,
		sink:  sink,
		tried: make(map[string]struct{}),
		log: logger.With().
			Str("day", req.Day.String()).
			Str("region", req.Region).
			Str("language", req.Language).
			Logger(),
	}
}

// Start binds the first candidate. Calling it again has no effect.
func (c *Controller) Start() {
	if c.state != StateIdle {
		return
	}
	first := stepStatic
	if c.req.PreferAnimated {
		first = stepAnimated
	}
	c.bindFrom(first)
}

// OnLoad is called by the sink when the bound source rendered.
func (c *Controller) OnLoad() {
	if c.state != StateRequesting {
		return
	}
	c.state = StateSuccess
	c.log.Trace().Str("url", c.current).Int("attempts", c.attempts).Msg("Media loaded")
}

// OnError is called by the sink when the bound source failed.
// It moves to the next candidate; once on the placeholder it does nothing.
func (c *Controller) OnError() {
	if c.state != StateRequesting {
		return
	}
	c.log.Trace().Str("url", c.current).Msg("Media failed, falling back")
	c.bindFrom(c.step + 1)
}

func (c *Controller) State() State {
	return c.state
}

// Current returns the URL bound to the sink, if any.
func (c *Controller) Current() string {
	return c.current
}

// Attempts returns the number of network candidates bound so far.
func (c *Controller) Attempts() int {
	return c.attempts
}

func (c *Controller) FallbackState() FallbackState {
	return c.fs
}

func (c *Controller) candidate(s step) string {
	switch s {
	case stepAnimated:
		return c.loc.Resolve(c.req.Day, c.req.Region, c.req.Language, true)
	case stepStatic:
		return c.loc.Resolve(c.req.Day, c.req.Region, c.req.Language, false)
	case stepYesterday:
		return c.loc.Resolve(c.req.Day.Yesterday(), c.req.Region, c.req.Language, false)
	}
	return Placeholder
}

// bindFrom binds the first candidate at or after s that was not tried yet.
func (c *Controller) bindFrom(s step) {
	for ; s < stepPlaceholder; s++ {
		url := c.candidate(s)
		if _, seen := c.tried[url]; seen {
			continue
		}
		c.tried[url] = struct{}{}
		c.markTried(s)
		c.step = s
		c.current = url
		c.state = StateRequesting
		c.attempts++
		c.sink.SetSource(url)
		return
	}
	c.step = stepPlaceholder
	c.current = Placeholder
	c.state = StatePlaceholder
	c.fs.TriedPlaceholder = true
	c.log.Debug().Int("attempts", c.attempts).Msg("All media candidates failed, showing placeholder")
	c.sink.SetSource(Placeholder)
}

func (c *Controller) markTried(s step) {
	switch s {
	case stepAnimated:
		c.fs.TriedAnimated = true
	case stepStatic:
		c.fs.TriedStatic = true
	case stepYesterday:
		c.fs.TriedYesterday = true
	}
}
