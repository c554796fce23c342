package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/always-cache/media-edge/cache"
	"github.com/always-cache/media-edge/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultApp             = "tell-a-tale"
	DefaultMaxMediaEntries = 50
	DefaultInstallTimeout  = 30 * time.Second
	defaultMessageQueue    = 16
)

var (
	ErrUnknownEvent    = errors.New("unknown event kind")
	ErrInvalidState    = errors.New("invalid lifecycle state")
	ErrStorageRequired = errors.New("cache storage is required")
)

type Config struct {
	// Storage holding the cache namespaces.
	Storage cache.Storage
	// Transport used for real network fetches. http.DefaultTransport if nil.
	Network http.RoundTripper
	// Application name, used as the namespace prefix.
	App string
	// Namespace version. Bumping it invalidates every cache on activation.
	Version int
	// Upper bound of entries in the media namespace.
	MaxMediaEntries int
	// Absolute URLs stored in the static shell namespace on install.
	// The first one should be the document root.
	ShellURLs []string
	// Host substrings identifying media hosting domains.
	// DefaultMediaHosts if nil.
	MediaHosts []string
	// URL prefixes identifying media, e.g. "https://tale.example/media/".
	MediaPrefixes []string
	// Upper bound for the install pre-warm.
	InstallTimeout time.Duration
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
}

// Names holds the three namespace names of one cache version.
type Names struct {
	Generic string
	Static  string
	Media   string
}

// Namespaces returns the namespace names for an app and version.
func Namespaces(app string, version int) Names {
	return Names{
		Generic: fmt.Sprintf("%s-v%d", app, version),
		Static:  fmt.Sprintf("%s-static-v%d", app, version),
		Media:   fmt.Sprintf("%s-images-v%d", app, version),
	}
}

// Has reports whether name is one of the namespaces.
func (n Names) Has(name string) bool {
	return name == n.Generic || name == n.Static || name == n.Media
}

type LifecycleState int32

const (
	StateParsed LifecycleState = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActive
	StateRedundant
)

func (s LifecycleState) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	case StateRedundant:
		return "redundant"
	}
	return "parsed"
}

type EventKind string

const (
	EventInstall  EventKind = "install"
	EventActivate EventKind = "activate"
	EventFetch    EventKind = "fetch"
	EventMessage  EventKind = "message"
)

// Event is one unit of work for the manager.
type Event struct {
	ID   string
	Kind EventKind
	// Request is set for fetch events.
	Request *http.Request
	// Message is set for message events.
	Message Message
}

type handler func(ctx context.Context, ev Event) (*http.Response, error)

// Manager intercepts fetches and applies a caching strategy per resource class.
// It is constructed once per cache version and passed to whoever fetches.
type Manager struct {
	storage        cache.Storage
	network        http.RoundTripper
	names          Names
	maxMedia       int
	shellURLs      []string
	media          MediaSources
	installTimeout time.Duration
	log            zerolog.Logger

	state     atomic.Int32
	lifecycle sync.Mutex
	handlers  map[EventKind]handler

	messages chan Message
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// CreateManager initializes a cache manager.
// It starts the background message worker; call Close to stop it.
func CreateManager(config Config) (*Manager, error) {
	if config.Storage == nil {
		return nil, ErrStorageRequired
	}

	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	app := config.App
	if app == "" {
		app = DefaultApp
	}
	version := config.Version
	if version <= 0 {
		version = 1
	}
	names := Namespaces(app, version)

	m := &Manager{
		storage:        config.Storage,
		network:        config.Network,
		names:          names,
		maxMedia:       config.MaxMediaEntries,
		shellURLs:      config.ShellURLs,
		media:          MediaSources{Hosts: config.MediaHosts, Prefixes: config.MediaPrefixes},
		installTimeout: config.InstallTimeout,
		log:            logger.With().Str("cache", names.Generic).Logger(),
		messages:       make(chan Message, defaultMessageQueue),
	}
	if m.network == nil {
		m.network = http.DefaultTransport
	}
	if m.maxMedia <= 0 {
		m.maxMedia = DefaultMaxMediaEntries
	}
	if m.installTimeout <= 0 {
		m.installTimeout = DefaultInstallTimeout
	}
	if m.media.Hosts == nil {
		m.media.Hosts = DefaultMediaHosts
	}
	m.handlers = map[EventKind]handler{
		EventInstall:  m.handleInstall,
		EventActivate: m.handleActivate,
		EventFetch:    m.handleFetch,
		EventMessage:  m.handleMessage,
	}

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.wg.Add(1)
	go m.drainMessages()

	return m, nil
}

// Names returns the namespaces of this cache version.
func (m *Manager) Names() Names {
	return m.names
}

func (m *Manager) State() LifecycleState {
	return LifecycleState(m.state.Load())
}

func (m *Manager) setState(s LifecycleState) {
	m.state.Store(int32(s))
	metrics.RecordTransition(s.String())
	m.log.Info().Str("state", s.String()).Msg("Lifecycle transition")
}

// Dispatch runs the handler for the event kind to completion.
func (m *Manager) Dispatch(ctx context.Context, ev Event) (*http.Response, error) {
	h, ok := m.handlers[ev.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, ev.Kind)
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	logger := m.log.With().Str("event", ev.ID).Str("kind", string(ev.Kind)).Logger()
	return h(logger.WithContext(ctx), ev)
}

// Install pre-warms the static shell namespace.
func (m *Manager) Install(ctx context.Context) error {
	_, err := m.Dispatch(ctx, Event{Kind: EventInstall})
	return err
}

// Activate removes stale namespaces and starts intercepting fetches.
func (m *Manager) Activate(ctx context.Context) error {
	_, err := m.Dispatch(ctx, Event{Kind: EventActivate})
	return err
}

// RoundTrip implements http.RoundTripper.
// Only GET requests are intercepted, and only while the manager is active;
// everything else goes straight to the network.
func (m *Manager) RoundTrip(req *http.Request) (*http.Response, error) {
	if m.State() != StateActive || req.Method != http.MethodGet {
		return m.network.RoundTrip(req)
	}
	return m.Dispatch(req.Context(), Event{Kind: EventFetch, Request: req})
}

// Close stops the message worker and marks the manager redundant.
func (m *Manager) Close() error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.State() != StateRedundant {
		m.setState(StateRedundant)
	}
	m.cancel()
	m.wg.Wait()
	return nil
}
