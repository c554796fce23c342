package mediaedge

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/always-cache/media-edge/cache"
	"github.com/always-cache/media-edge/core"
	"github.com/always-cache/media-edge/locator"
	cachekey "github.com/always-cache/media-edge/pkg/cache-key"
	"github.com/always-cache/media-edge/trigger"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadConfig.
const EnvPrefix = "MEDIA_EDGE_"

// Config is the configuration of a media edge deployment.
// Values come from defaults, then the YAML file, then the environment.
type Config struct {
	// Origin URL to proxy to.
	Origin string `yaml:"origin" env:"ORIGIN"`
	// Hostname of the origin, if the origin URL is an address.
	OriginHost string `yaml:"originHost" env:"ORIGIN_HOST"`
	Port       int    `yaml:"port" env:"PORT"`

	// Cache provider: sqlite, memory or redis.
	Provider string `yaml:"provider" env:"PROVIDER"`
	// SQLite database file name.
	DB string `yaml:"db" env:"DB"`
	// Redis connection URL, for the redis provider.
	RedisURL    string `yaml:"redisUrl" env:"REDIS_URL"`
	RedisPrefix string `yaml:"redisPrefix" env:"REDIS_PREFIX"`

	App             string        `yaml:"app" env:"APP"`
	Version         int           `yaml:"version" env:"VERSION"`
	MaxMediaEntries int           `yaml:"maxMediaEntries" env:"MAX_MEDIA_ENTRIES"`
	InstallTimeout  time.Duration `yaml:"installTimeout" env:"INSTALL_TIMEOUT"`
	// Origin paths pre-cached on install. The first one is the document root.
	ShellPaths []string `yaml:"shellPaths" env:"SHELL_PATHS" envSeparator:","`
	// Host substrings of media hosting domains. The media base host is always added.
	MediaHosts []string `yaml:"mediaHosts" env:"MEDIA_HOSTS" envSeparator:","`

	// Base URL of the media of the day.
	MediaBaseURL string `yaml:"mediaBaseUrl" env:"MEDIA_BASE_URL"`
	// Animated format: mp4 or gif.
	Animated       string `yaml:"animated" env:"ANIMATED"`
	PreferAnimated bool   `yaml:"preferAnimated" env:"PREFER_ANIMATED"`

	// Interval of tomorrow's pre-staging. Zero disables it.
	PrestageInterval time.Duration `yaml:"prestageInterval" env:"PRESTAGE_INTERVAL"`
	Regions          []string      `yaml:"regions" env:"REGIONS" envSeparator:","`
	Languages        []string      `yaml:"languages" env:"LANGUAGES" envSeparator:","`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	regions := make([]string, 0, len(locator.Regions))
	for _, r := range locator.Regions {
		regions = append(regions, string(r))
	}
	return Config{
		Port:             8080,
		Provider:         "sqlite",
		DB:               "cache.db",
		App:              core.DefaultApp,
		Version:          1,
		MaxMediaEntries:  core.DefaultMaxMediaEntries,
		InstallTimeout:   core.DefaultInstallTimeout,
		ShellPaths:       []string{"/"},
		Animated:         "mp4",
		PrestageInterval: trigger.DefaultInterval,
		Regions:          regions,
		Languages:        []string{locator.DefaultLanguage},
	}
}

// LoadConfig reads the YAML file, if a filename is given, and the environment on top of the defaults.
func LoadConfig(filename string) (Config, error) {
	config := DefaultConfig()
	if filename != "" {
		b, err := os.ReadFile(filename)
		if err != nil {
			return config, err
		}
		if err := yaml.Unmarshal(b, &config); err != nil {
			return config, fmt.Errorf("parse %s: %w", filename, err)
		}
	}
	if err := env.ParseWithOptions(&config, env.Options{Prefix: EnvPrefix}); err != nil {
		return config, fmt.Errorf("parse environment: %w", err)
	}
	return config, nil
}

// OriginURL parses the origin.
func (c Config) OriginURL() (*url.URL, error) {
	if c.Origin == "" {
		return nil, errors.New("please specify origin")
	}
	u, err := url.Parse(c.Origin)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("origin must be an absolute url: %s", c.Origin)
	}
	if u.Path != "" && u.Path != "/" {
		return nil, fmt.Errorf("origins with paths are not supported: %s", c.Origin)
	}
	u.Path = ""
	return u, nil
}

// Locator returns the media locator, or an error if no base URL is set.
func (c Config) Locator() (locator.Locator, error) {
	if c.MediaBaseURL == "" {
		return locator.Locator{}, errors.New("please specify media base url")
	}
	loc := locator.New(c.MediaBaseURL)
	switch strings.ToLower(c.Animated) {
	case "gif":
		loc.Animated = locator.KindAnimatedGIF
	case "", "mp4", "video":
		loc.Animated = locator.KindVideo
	default:
		return loc, fmt.Errorf("unsupported animated format: %s", c.Animated)
	}
	return loc, nil
}

// OpenStorage opens the configured cache provider.
func (c Config) OpenStorage() (cache.Storage, error) {
	switch c.Provider {
	case "sqlite", "":
		// use a shared in-memory database for "memory" file names
		db := c.DB
		if db == "memory" {
			db = "file::memory:?cache=shared"
		}
		return cache.NewSQLiteStorage(db)
	case "memory":
		return cache.NewMemStorage(), nil
	case "redis":
		if c.RedisURL == "" {
			return nil, errors.New("please specify redis url")
		}
		return cache.NewRedisStorage(c.RedisURL, c.RedisPrefix)
	}
	return nil, fmt.Errorf("unsupported cache provider: %s", c.Provider)
}

// ManagerConfig builds the cache manager configuration for the given storage.
func (c Config) ManagerConfig(storage cache.Storage, logger *zerolog.Logger) (core.Config, error) {
	origin, err := c.OriginURL()
	if err != nil {
		return core.Config{}, err
	}
	shell := make([]string, 0, len(c.ShellPaths))
	for _, p := range c.ShellPaths {
		ref, err := url.Parse(p)
		if err != nil {
			return core.Config{}, fmt.Errorf("invalid shell path %q: %w", p, err)
		}
		shell = append(shell, origin.ResolveReference(ref).String())
	}
	hosts := append([]string{}, c.MediaHosts...)
	if c.MediaHosts == nil {
		hosts = append(hosts, core.DefaultMediaHosts...)
	}
	var prefixes []string
	if base, err := url.Parse(c.MediaBaseURL); err == nil && base.Hostname() != "" {
		baseHost := strings.ToLower(base.Hostname())
		if strings.Contains(strings.ToLower(origin.Hostname()), baseHost) {
			// media shares the origin host, so only the media path identifies it
			prefixes = append(prefixes, strings.TrimSuffix(cachekey.ForURL(base), "/")+"/")
		} else {
			hosts = append(hosts, baseHost)
		}
	}
	return core.Config{
		Storage:         storage,
		Network:         OriginTransport(*origin, c.OriginHost),
		App:             c.App,
		Version:         c.Version,
		MaxMediaEntries: c.MaxMediaEntries,
		ShellURLs:       shell,
		MediaHosts:      hosts,
		MediaPrefixes:   prefixes,
		InstallTimeout:  c.InstallTimeout,
		Logger:          logger,
	}, nil
}

// TriggerConfig builds the pre-staging trigger configuration.
func (c Config) TriggerConfig(poster trigger.Poster, loc locator.Locator, logger *zerolog.Logger) trigger.Config {
	regions := make([]locator.Region, 0, len(c.Regions))
	for _, r := range c.Regions {
		regions = append(regions, locator.ParseRegion(r))
	}
	return trigger.Config{
		Poster:         poster,
		Locator:        loc,
		Regions:        regions,
		Languages:      c.Languages,
		PreferAnimated: c.PreferAnimated,
		Logger:         logger,
	}
}
