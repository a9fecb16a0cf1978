// Package config loads apophis.toml, the optional settings file for the
// CLI and servers.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"

	"github.com/djlacavera21/Apophis/encoder"
)

// FileName is the settings file looked up by FindAndLoad.
const FileName = "apophis.toml"

// Secondary modes.
const (
	ModeBuiltin    = "builtin"
	ModeSubprocess = "subprocess"
)

// ErrInvalid wraps every schema violation.
var ErrInvalid = errors.New("config: invalid settings")

//go:embed schema.cue
var schemaSource string

// Config is the decoded apophis.toml.
type Config struct {
	Exotic    Exotic    `toml:"exotic"`
	Script    Script    `toml:"script"`
	Secondary Secondary `toml:"secondary"`
	Encoder   Encoder   `toml:"encoder"`
	Log       Log       `toml:"log"`
	Server    Server    `toml:"server"`

	// Dir is the directory the file was loaded from. Relative paths in
	// the file resolve against it.
	Dir string `toml:"-"`
}

// Exotic holds [exotic].
type Exotic struct {
	MaxSteps uint64 `toml:"max_steps"` // 0 means unlimited
}

// Script holds [script].
type Script struct {
	MaxSteps int `toml:"max_steps"`
	MaxDepth int `toml:"max_depth"`
}

// Secondary holds [secondary].
type Secondary struct {
	Mode    string   `toml:"mode"`
	Command []string `toml:"command"`
	Timeout string   `toml:"timeout"`
}

// TimeoutDuration parses Timeout. Load has already checked it.
func (s Secondary) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// Encoder holds [encoder].
type Encoder struct {
	Candidates    int    `toml:"candidates"`
	MaxExpansions int    `toml:"max_expansions"`
	Cache         string `toml:"cache"`
}

// Log holds [log].
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Server holds [server].
type Server struct {
	Addr string `toml:"addr"`
}

// Default returns the settings used when no file is present.
func Default() *Config {
	return &Config{
		Script: Script{MaxSteps: 1_000_000, MaxDepth: 200},
		Secondary: Secondary{
			Mode:    ModeBuiltin,
			Command: []string{"ruby"},
			Timeout: "10s",
		},
		Encoder: Encoder{
			Candidates:    encoder.DefaultCandidates,
			MaxExpansions: encoder.DefaultMaxExpansions,
			Cache:         filepath.Join(".apophis", "encodings.db"),
		},
		Server: Server{Addr: ":4567"},
	}
}

// Load reads apophis.toml from dir.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile reads a settings file at an explicit path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving config directory: %w", err)
	}
	cfg.Dir = abs
	return cfg, nil
}

// Parse decodes and validates settings. Keys missing from data keep
// their defaults.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}
	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if len(cfg.Secondary.Command) == 0 {
		cfg.Secondary.Command = []string{"ruby"}
	}
	return cfg, nil
}

// FindAndLoad searches for apophis.toml starting from startDir and walking
// up. Returns nil, nil if none is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// CachePath resolves the encoder cache path. It is empty when caching is
// disabled.
func (c *Config) CachePath() string {
	p := c.Encoder.Cache
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// validate checks raw against the embedded CUE schema. Unknown sections
// and keys are rejected because the definition is closed.
func validate(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("config: compiling schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := ctx.Encode(raw)
	if err := def.Unify(v).Validate(); err != nil {
		msg := strings.TrimSpace(cueerrors.Details(err, nil))
		return fmt.Errorf("%w: %s", ErrInvalid, strings.ReplaceAll(msg, "\n", "; "))
	}
	return nil
}
