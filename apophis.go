// Package apophis assembles the runtime pieces described by a config:
// the hybrid dispatcher with its evaluators, and a cache-backed encoder.
package apophis

import (
	"context"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/djlacavera21/Apophis/bridge"
	"github.com/djlacavera21/Apophis/cache"
	"github.com/djlacavera21/Apophis/config"
	"github.com/djlacavera21/Apophis/encoder"
	"github.com/djlacavera21/Apophis/hybrid"
	"github.com/djlacavera21/Apophis/malbolge"
	"github.com/djlacavera21/Apophis/script"
)

// Version is reported by the CLI and the language server.
const Version = "0.3.0"

var log = commonlog.GetLogger("apophis")

// ExoticOptions returns the machine options for cfg.
func ExoticOptions(cfg *config.Config) []malbolge.Option {
	if cfg.Exotic.MaxSteps == 0 {
		return nil
	}
	return []malbolge.Option{malbolge.WithMaxSteps(cfg.Exotic.MaxSteps)}
}

// Secondary returns the evaluator for secondary lines.
func Secondary(cfg *config.Config) (hybrid.Evaluator, error) {
	switch cfg.Secondary.Mode {
	case config.ModeBuiltin, "":
		return script.New(script.Ruby, scriptOptions(cfg)...), nil
	case config.ModeSubprocess:
		cmd := cfg.Secondary.Command
		if len(cmd) == 0 {
			cmd = []string{"ruby"}
		}
		b := bridge.New(
			bridge.WithCommand(cmd[0], cmd[1:]...),
			bridge.WithTimeout(cfg.Secondary.TimeoutDuration()),
		)
		if err := b.Available(); err != nil {
			// Runs that never reach a secondary line still work.
			log.Warningf("%s", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown secondary mode %q", cfg.Secondary.Mode)
}

func scriptOptions(cfg *config.Config) []script.Option {
	return []script.Option{
		script.WithMaxSteps(cfg.Script.MaxSteps),
		script.WithMaxDepth(cfg.Script.MaxDepth),
	}
}

// NewDispatcher builds a dispatcher from cfg. A nil cfg means defaults.
func NewDispatcher(cfg *config.Config) (*hybrid.Dispatcher, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	secondary, err := Secondary(cfg)
	if err != nil {
		return nil, err
	}
	return hybrid.New(
		hybrid.WithPrimary(script.New(script.Python, scriptOptions(cfg)...)),
		hybrid.WithSecondary(secondary),
		hybrid.WithExotic(hybrid.Machine{Options: ExoticOptions(cfg)}),
	), nil
}

// Encoder runs the program search, consulting a persistent cache first
// when one is open.
type Encoder struct {
	candidates    int
	maxExpansions int
	cache         *cache.Cache
}

// NewEncoder builds an encoder from cfg. The cache is opened only when
// useCache is set and cfg names a cache file.
func NewEncoder(cfg *config.Config, useCache bool) (*Encoder, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	e := &Encoder{
		candidates:    cfg.Encoder.Candidates,
		maxExpansions: cfg.Encoder.MaxExpansions,
	}
	if path := cfg.CachePath(); useCache && path != "" {
		c, err := cache.Open(path)
		if err != nil {
			return nil, err
		}
		e.cache = c
	}
	return e, nil
}

// Encode returns exotic source printing target. Cached programs are
// re-run before use; a stale entry is replaced.
func (e *Encoder) Encode(ctx context.Context, target string) (string, error) {
	var key cache.Key
	if e.cache != nil {
		key = cache.KeyFor(target, e.candidates, e.maxExpansions)
		src, ok, err := e.cache.Get(ctx, key)
		if err != nil {
			return "", err
		}
		if ok {
			if out, runErr := malbolge.Execute(src); runErr == nil && out == target {
				return src, nil
			}
			log.Warningf("cached encoding %s no longer prints its target, searching again", key)
		}
	}

	src, err := encoder.Encode(target,
		encoder.WithCandidates(e.candidates),
		encoder.WithMaxExpansions(e.maxExpansions),
	)
	if err != nil {
		return "", err
	}
	if e.cache != nil {
		if err := e.cache.Put(ctx, key, len(target), src); err != nil {
			return "", err
		}
	}
	return src, nil
}

// Close releases the cache.
func (e *Encoder) Close() error {
	if e.cache == nil {
		return nil
	}
	return e.cache.Close()
}
