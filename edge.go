package mediaedge

import (
	"crypto/tls"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/always-cache/media-edge/core"
	"github.com/always-cache/media-edge/fallback"
	"github.com/always-cache/media-edge/locator"
	"github.com/always-cache/media-edge/metrics"
	"github.com/always-cache/media-edge/trigger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/language"
)

// maxMessageBytes bounds the body of a message post.
const maxMessageBytes = 64 << 10

type EdgeConfig struct {
	// URL of the origin server. Origins with paths are not supported.
	OriginURL url.URL
	// Hostname to use for HTTP requests and TLS negotiation.
	// Use if needed if e.g. the origin URL is just an IP address.
	OriginHost string
	// Runtime holding the active cache manager.
	Runtime *core.Runtime
	// Locator used by the today endpoint.
	Locator locator.Locator
	// Trigger asked to cache rendered media. Posts to Runtime if nil.
	Trigger *trigger.Trigger
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Edge proxies an origin through the cache manager and exposes its control endpoints.
type Edge struct {
	runtime    *core.Runtime
	originURL  url.URL
	originHost string
	loc        locator.Locator
	trigger    *trigger.Trigger
	log        zerolog.Logger
	now        func() time.Time
	// client fetches through the cache manager
	client *http.Client
	// direct bypasses the cache manager
	direct *http.Client
	router chi.Router
}

// CreateEdge sets up the router of the edge server.
func CreateEdge(config EdgeConfig) (*Edge, error) {
	if config.Runtime == nil {
		return nil, errors.New("runtime is required")
	}
	if config.OriginURL.Host == "" {
		return nil, errors.New("origin url is required")
	}

	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}
	logger = logger.With().
		Str("origin", config.OriginURL.String()).
		Logger()

	e := &Edge{
		runtime:    config.Runtime,
		originURL:  config.OriginURL,
		originHost: config.OriginHost,
		loc:        config.Locator,
		trigger:    config.Trigger,
		log:        logger,
		now:        config.Now,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.trigger == nil {
		e.trigger = trigger.New(trigger.Config{
			Poster:  config.Runtime,
			Locator: config.Locator,
			Logger:  &logger,
		})
	}

	network := config.Runtime.Network
	if network == nil {
		network = OriginTransport(e.originURL, e.originHost)
	}
	noRedirect := func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	e.client = &http.Client{Transport: config.Runtime, CheckRedirect: noRedirect}
	e.direct = &http.Client{Transport: network, CheckRedirect: noRedirect}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(hlog.NewHandler(e.log))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Debug().
			Str("method", r.Method).
			Str("url", r.URL.String()).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Sending response to client")
	}))
	r.Get("/healthz", e.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/_edge", func(r chi.Router) {
		r.Post("/message", e.handleMessage)
		r.Get("/status", e.handleStatus)
		r.Delete("/caches", e.handleClear)
		r.Get("/today", e.handleToday)
	})
	r.HandleFunc("/*", e.proxy)
	e.router = r

	return e, nil
}

// ServeHTTP implements the http.Handler interface.
func (e *Edge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.router.ServeHTTP(w, r)
}

// proxy forwards the request to the origin through the cache manager.
func (e *Edge) proxy(w http.ResponseWriter, r *http.Request) {
	defer e.recover(w, r)
	log := hlog.FromRequest(r)

	req, err := e.originRequest(r)
	if err != nil {
		log.Error().Err(err).Msg("Could not create origin request")
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	log.Trace().Msgf("Forwarding %s %s", req.Method, req.URL.String())
	res, err := e.client.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Could not fetch response from origin")
		http.Error(w, "Error contacting origin", http.StatusBadGateway)
		return
	}
	e.send(w, res)
}

// recover recovers from panics and sends the request to the escape hatch.
func (e *Edge) recover(w http.ResponseWriter, r *http.Request) {
	if err := recover(); err != nil {
		hlog.FromRequest(r).WithLevel(zerolog.PanicLevel).Interface("error", err).Msg("Panic in cache handler")
		e.escapeHatch(w, r)
	}
}

// escapeHatch proxies the request straight to the origin, bypassing the cache.
func (e *Edge) escapeHatch(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	req, err := e.originRequest(r)
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	res, err := e.direct.Do(req)
	if err != nil {
		log.Error().Err(err).Msg("Error connecting to origin")
		http.Error(w, "Could not connect to origin", http.StatusBadGateway)
		return
	}
	e.send(w, res)
}

func (e *Edge) originRequest(r *http.Request) (*http.Request, error) {
	target := e.originURL
	target.Path = r.URL.Path
	target.RawPath = r.URL.RawPath
	target.RawQuery = r.URL.RawQuery

	var body io.Reader
	if r.Body != nil && r.Body != http.NoBody && r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = r.Body
	}
	req, err := http.NewRequestWithContext(r.Context(), r.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, r.Header)
	if e.originHost != "" {
		req.Host = e.originHost
	}
	return req, nil
}

func (e *Edge) send(w http.ResponseWriter, res *http.Response) {
	defer res.Body.Close()
	copyHeader(w.Header(), res.Header)
	w.WriteHeader(res.StatusCode)
	if _, err := io.Copy(w, res.Body); err != nil {
		e.log.Error().Err(err).Msg("Could not write response body to client")
	}
}

func (e *Edge) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := "none"
	if m := e.runtime.Active(); m != nil {
		state = m.State().String()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "manager": state})
}

// handleMessage accepts a proactive cache message. It never reports whether the message was handled.
func (e *Edge) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg core.Message
	if err := json.NewDecoder(io.LimitReader(r.Body, maxMessageBytes)).Decode(&msg); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Invalid message")
		http.Error(w, "Invalid message", http.StatusBadRequest)
		return
	}
	if m := e.runtime.Active(); m != nil {
		m.PostMessage(msg)
	}
	w.WriteHeader(http.StatusAccepted)
}

func (e *Edge) handleStatus(w http.ResponseWriter, r *http.Request) {
	m := e.runtime.Active()
	if m == nil {
		http.Error(w, "No active cache manager", http.StatusServiceUnavailable)
		return
	}
	st, err := m.Status(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Could not get cache status")
		http.Error(w, "Could not get cache status", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (e *Edge) handleClear(w http.ResponseWriter, r *http.Request) {
	m := e.runtime.Active()
	if m == nil {
		http.Error(w, "No active cache manager", http.StatusServiceUnavailable)
		return
	}
	deleted, err := m.ClearAll(r.Context())
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Could not clear caches")
		http.Error(w, "Could not clear caches", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

// handleToday runs the fallback chain for today's media and serves the winner.
// Query parameters: region, lang, animated and day (YYYY-MM-DD, default today).
// Region and language default to the request host and Accept-Language.
func (e *Edge) handleToday(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	q := r.URL.Query()

	day := locator.Today(e.now())
	if s := q.Get("day"); s != "" {
		d, err := locator.ParseDay(s)
		if err != nil {
			http.Error(w, "Invalid day", http.StatusBadRequest)
			return
		}
		day = d
	}
	region := q.Get("region")
	if region == "" {
		region = string(locator.RegionFromHost(hostname(r)))
	}
	lang := q.Get("lang")
	if lang == "" {
		lang = acceptLanguage(r.Header.Get("Accept-Language"))
	}
	animated, _ := strconv.ParseBool(q.Get("animated"))

	out, err := fallback.Load(r.Context(), e.client, e.loc, fallback.Request{
		Day:            day,
		Region:         region,
		Language:       lang,
		PreferAnimated: animated,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Fallback chain aborted")
		http.Error(w, "Request cancelled", http.StatusServiceUnavailable)
		return
	}
	metrics.RecordFallback(out.State.String())
	log.Debug().Str("url", out.URL).Str("state", out.State.String()).Int("attempts", out.Attempts).Msg("Resolved media of the day")
	if out.State == fallback.StateSuccess {
		e.trigger.CacheRendered(out.URL)
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("X-Media-Url", out.URL)
	w.Header().Set("X-Media-State", out.State.String())
	if out.State == fallback.StatePlaceholder {
		w.Header().Set("Cache-Control", "no-store")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(out.Body)
}

// OriginTransport returns the transport used for network fetches.
// Requests to the origin use originHost, if not empty, for TLS negotiation;
// every other host goes through http.DefaultTransport.
func OriginTransport(origin url.URL, originHost string) http.RoundTripper {
	if originHost == "" {
		return http.DefaultTransport
	}
	return &originTransport{
		originHost: origin.Host,
		origin: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				ServerName: originHost,
			},
		},
		other: http.DefaultTransport,
	}
}

type originTransport struct {
	originHost string
	origin     http.RoundTripper
	other      http.RoundTripper
}

func (t *originTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Host == t.originHost {
		return t.origin.RoundTrip(req)
	}
	return t.other.RoundTrip(req)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func hostname(r *http.Request) string {
	host := r.Host
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	return host
}

// acceptLanguage returns the preferred language of an Accept-Language header.
func acceptLanguage(header string) string {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return locator.DefaultLanguage
	}
	return tags[0].String()
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// this is a workaround to remove default headers sent by an upstream proxy
		// some servers do not like the presence of these headers in the downstream request
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}
