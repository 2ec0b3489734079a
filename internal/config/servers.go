package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Fetch modes for Server.FetchMode.
const (
	FetchHTTP    = "http"
	FetchBrowser = "browser"
)

// Duration reads YAML values such as "2.5s" or "30s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

// Server is the static fetch configuration of one game server.
type Server struct {
	BaseURL    string            `yaml:"base_url"`
	Worlds     []string          `yaml:"worlds"`
	Timeout    Duration          `yaml:"timeout"`
	MaxRetries *int              `yaml:"max_retries"`
	RetryDelay Duration          `yaml:"retry_delay"`
	MinDelay   Duration          `yaml:"min_delay"`
	Headers    map[string]string `yaml:"headers"`
	Timezone   string            `yaml:"timezone"`
	FetchMode  string            `yaml:"fetch_mode"`
	WaitFor    string            `yaml:"wait_for"`
}

// Retries returns MaxRetries or the default of 3.
func (s Server) Retries() int {
	if s.MaxRetries == nil {
		return 3
	}
	return *s.MaxRetries
}

// DefaultServers is the compiled-in configuration of every supported server.
func DefaultServers() map[string]Server {
	return map[string]Server{
		"rubinot": {
			BaseURL:    "https://rubinot.com.br",
			Worlds:     []string{"Elysian", "Auroria", "Belaria", "Bellum", "Vesperia", "Lunarian", "Spectrum", "Tenebrium", "Serenian", "Mystian"},
			Timeout:    Duration(30 * time.Second),
			RetryDelay: Duration(2 * time.Second),
			MinDelay:   Duration(2 * time.Second),
			Headers:    map[string]string{"Accept-Language": "en-US,en;q=0.9"},
			Timezone:   "America/Sao_Paulo",
			FetchMode:  FetchHTTP,
		},
		"mystian": {
			BaseURL:    "https://mystian.online",
			Worlds:     []string{"Aurea", "Obsidian", "Ventoris"},
			Timeout:    Duration(30 * time.Second),
			RetryDelay: Duration(3 * time.Second),
			MinDelay:   Duration(2500 * time.Millisecond),
			Headers:    map[string]string{"Accept": "text/html"},
			Timezone:   "Europe/Berlin",
			FetchMode:  FetchHTTP,
		},
	}
}

type serversFile struct {
	Servers map[string]Server `yaml:"servers"`
}

// LoadServers overlays the servers declared in path on top of defaults.
// Zero-valued fields in the file keep the default. A missing file yields
// the defaults unchanged.
func LoadServers(path string, defaults map[string]Server) (map[string]Server, error) {
	out := make(map[string]Server, len(defaults))
	for id, s := range defaults {
		out[id] = s
	}
	if path == "" {
		return out, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("could not read servers file %s: %w", path, err)
	}

	var file serversFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("could not parse servers file %s: %w", path, err)
	}

	for rawID, override := range file.Servers {
		id := strings.ToLower(strings.TrimSpace(rawID))
		merged := mergeServer(out[id], override)
		if merged.BaseURL == "" || len(merged.Worlds) == 0 {
			return nil, fmt.Errorf("server %q in %s needs base_url and worlds", id, path)
		}
		switch merged.FetchMode {
		case "", FetchHTTP, FetchBrowser:
		default:
			return nil, fmt.Errorf("server %q in %s: unknown fetch_mode %q", id, path, merged.FetchMode)
		}
		out[id] = merged
	}
	log.Printf("[I] [Config] Loaded %d server override(s) from %s.", len(file.Servers), path)
	return out, nil
}

func mergeServer(base, o Server) Server {
	if o.BaseURL != "" {
		base.BaseURL = o.BaseURL
	}
	if len(o.Worlds) > 0 {
		base.Worlds = o.Worlds
	}
	if o.Timeout > 0 {
		base.Timeout = o.Timeout
	}
	if o.MaxRetries != nil {
		base.MaxRetries = o.MaxRetries
	}
	if o.RetryDelay > 0 {
		base.RetryDelay = o.RetryDelay
	}
	if o.MinDelay > 0 {
		base.MinDelay = o.MinDelay
	}
	if len(o.Headers) > 0 {
		merged := make(map[string]string, len(base.Headers)+len(o.Headers))
		for k, v := range base.Headers {
			merged[k] = v
		}
		for k, v := range o.Headers {
			merged[k] = v
		}
		base.Headers = merged
	}
	if o.Timezone != "" {
		base.Timezone = o.Timezone
	}
	if o.FetchMode != "" {
		base.FetchMode = o.FetchMode
	}
	if o.WaitFor != "" {
		base.WaitFor = o.WaitFor
	}
	return base
}
