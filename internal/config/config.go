// Package config loads the application configuration file.
//
// The file is YAML, decoded strictly (unknown keys are errors) over the
// defaults, then validated against an embedded CUE schema. Constraints
// CUE cannot see (event kind names, duplicates) are checked in Go after.
//
//	title: Sandbox
//	width: 1280
//	height: 720
//	max_delta: 100ms
//	frame_limit: 600
//	log_level: info
//	stats_db: kiln.db
//	modules: [window, input, time, renderer]
//	requires:
//	  time: [input]
//	layers:
//	  - name: game
//	  - name: hud
//	    overlay: true
//	    handles: [KeyPressed]
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/kiln/internal/event"
)

//go:embed schema.cue
var schemaCUE string

// Config is the application configuration.
type Config struct {
	Title      string        `yaml:"title"`
	Width      int           `yaml:"width"`
	Height     int           `yaml:"height"`
	MaxDelta   time.Duration `yaml:"max_delta"`
	FrameLimit uint64        `yaml:"frame_limit"`
	LogLevel   string        `yaml:"log_level"`
	StatsDB    string        `yaml:"stats_db"`
	Modules    []string      `yaml:"modules"`
	Layers     []Layer       `yaml:"layers"`

	// Requires adds construction-order dependencies between enabled
	// modules on top of the built-in ones, e.g. {time: [input]}.
	Requires map[string][]string `yaml:"requires"`
}

// Layer declares a demo layer to push at startup.
type Layer struct {
	Name    string   `yaml:"name"`
	Overlay bool     `yaml:"overlay"`
	Handles []string `yaml:"handles"` // event kind names the layer consumes
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Title:    "KILN",
		Width:    1280,
		Height:   720,
		MaxDelta: 100 * time.Millisecond,
		LogLevel: "info",
		Modules:  []string{"window", "input", "time", "renderer"},
	}
}

// Load reads path, decodes it over Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default and validates the result. An empty
// document yields the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if len(bytes.TrimSpace(data)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// cueView is the shape unified with the schema. CUE reads json tags.
type cueView struct {
	Title      string     `json:"title"`
	Width      int        `json:"width"`
	Height     int        `json:"height"`
	MaxDelta   int64      `json:"max_delta"`
	FrameLimit uint64     `json:"frame_limit"`
	LogLevel   string     `json:"log_level"`
	StatsDB    string     `json:"stats_db"`
	Modules    []string            `json:"modules"`
	Requires   map[string][]string `json:"requires"`
	Layers     []cueLayer          `json:"layers"`
}

type cueLayer struct {
	Name    string   `json:"name"`
	Overlay bool     `json:"overlay"`
	Handles []string `json:"handles"`
}

func (c *Config) view() cueView {
	v := cueView{
		Title:      c.Title,
		Width:      c.Width,
		Height:     c.Height,
		MaxDelta:   int64(c.MaxDelta),
		FrameLimit: c.FrameLimit,
		LogLevel:   c.LogLevel,
		StatsDB:    c.StatsDB,
		Modules:    append([]string{}, c.Modules...),
		Requires:   map[string][]string{},
		Layers:     []cueLayer{},
	}
	for id, reqs := range c.Requires {
		v.Requires[id] = append([]string{}, reqs...)
	}
	for _, l := range c.Layers {
		v.Layers = append(v.Layers, cueLayer{
			Name:    l.Name,
			Overlay: l.Overlay,
			Handles: append([]string{}, l.Handles...),
		})
	}
	return v
}

// Validate checks c against the schema plus the Go-side rules.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Config"))
	val := def.Unify(ctx.Encode(c.view()))
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%s", cueerrors.Details(err, nil))
	}

	seen := make(map[string]bool, len(c.Modules))
	for _, m := range c.Modules {
		if seen[m] {
			return fmt.Errorf("module %q listed twice", m)
		}
		seen[m] = true
	}
	// Targets may be disabled modules; validate reports those as missing.
	for id := range c.Requires {
		if !seen[id] {
			return fmt.Errorf("requires: module %q is not enabled", id)
		}
	}

	names := make(map[string]bool, len(c.Layers))
	for _, l := range c.Layers {
		if names[l.Name] {
			return fmt.Errorf("layer %q declared twice", l.Name)
		}
		names[l.Name] = true
		for _, h := range l.Handles {
			if _, err := event.ParseKind(h); err != nil {
				return fmt.Errorf("layer %q: %w", l.Name, err)
			}
		}
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// HandledKinds returns the parsed event kinds of l. Validate has already
// rejected unknown names.
func (l Layer) HandledKinds() []event.Kind {
	kinds := make([]event.Kind, 0, len(l.Handles))
	for _, h := range l.Handles {
		if k, err := event.ParseKind(h); err == nil {
			kinds = append(kinds, k)
		}
	}
	return kinds
}
