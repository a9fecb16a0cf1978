package apophis

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/djlacavera21/Apophis/bridge"
	"github.com/djlacavera21/Apophis/cache"
	"github.com/djlacavera21/Apophis/config"
	"github.com/djlacavera21/Apophis/malbolge"
	"github.com/djlacavera21/Apophis/script"
)

func TestNewDispatcherDefaults(t *testing.T) {
	d, err := NewDispatcher(nil)
	require.NoError(t, err)
	res, err := d.Run(context.Background(), ":print('A', end='')\n;print 'B'\n>b\n:print('C')", nil)
	require.NoError(t, err)
	require.Equal(t, "ABsC\n", res.Output)
}

func TestScriptLimitsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Script.MaxSteps = 50
	d, err := NewDispatcher(cfg)
	require.NoError(t, err)
	_, err = d.Run(context.Background(), ":while True:\n:    pass\n", nil)
	require.ErrorIs(t, err, script.ErrStepBudget)
}

func TestExoticLimitFromConfig(t *testing.T) {
	cfg := config.Default()
	require.Empty(t, ExoticOptions(cfg))

	cfg.Exotic.MaxSteps = 3
	d, err := NewDispatcher(cfg)
	require.NoError(t, err)
	_, err = d.Run(context.Background(), "(=<`#9]~6ZY32Vx/4Rs+0No-&Jk)\"Fh}|Bcy?`=*z]Kw%oG4UUS0/@-ejc(:'8dc\n", nil)
	require.ErrorIs(t, err, malbolge.ErrStepBudget)
}

func TestSecondaryModes(t *testing.T) {
	cfg := config.Default()
	ev, err := Secondary(cfg)
	require.NoError(t, err)
	require.IsType(t, &script.Interpreter{}, ev)

	cfg.Secondary.Mode = config.ModeSubprocess
	cfg.Secondary.Command = []string{"no-such-ruby-binary"}
	ev, err = Secondary(cfg)
	require.NoError(t, err)
	b, ok := ev.(*bridge.Bridge)
	require.True(t, ok)
	require.Equal(t, []string{"no-such-ruby-binary"}, b.Command())

	d, err := NewDispatcher(cfg)
	require.NoError(t, err)
	res, err := d.Run(context.Background(), ":print('before')\n;puts 1\n", nil)
	require.ErrorIs(t, err, bridge.ErrRuntimeUnavailable)
	require.Equal(t, "before\n", res.Output)

	cfg.Secondary.Mode = "jruby"
	_, err = Secondary(cfg)
	require.Error(t, err)
}

func TestSubprocessRejectsFunctions(t *testing.T) {
	cfg := config.Default()
	cfg.Secondary.Mode = config.ModeSubprocess
	cfg.Secondary.Command = []string{"no-such-ruby-binary"}
	d, err := NewDispatcher(cfg)
	require.NoError(t, err)

	// The environment is rendered before the runtime starts, so a function
	// binding faults even when the runtime is missing.
	res, err := d.Run(context.Background(), ":def f():\n:    return 1\n:print('x')\n;puts 1\n", nil)
	var ef *script.EvalFault
	require.ErrorAs(t, err, &ef)
	require.Contains(t, ef.Msg, `"f"`)
	require.NotErrorIs(t, err, bridge.ErrRuntimeUnavailable)
	require.Equal(t, "x\n", res.Output)
}

func TestEncoderWithoutCache(t *testing.T) {
	e, err := NewEncoder(nil, false)
	require.NoError(t, err)
	defer e.Close()

	src, err := e.Encode(context.Background(), "Hi")
	require.NoError(t, err)
	out, err := malbolge.Execute(src)
	require.NoError(t, err)
	require.Equal(t, "Hi", out)
}

func TestEncoderCache(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Dir = t.TempDir()

	e, err := NewEncoder(cfg, true)
	require.NoError(t, err)
	src, err := e.Encode(ctx, "ok")
	require.NoError(t, err)
	require.NoError(t, e.Close())

	c, err := cache.Open(cfg.CachePath())
	require.NoError(t, err)
	key := cache.KeyFor("ok", cfg.Encoder.Candidates, cfg.Encoder.MaxExpansions)
	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, src, got)

	// A corrupted entry is detected and replaced.
	require.NoError(t, c.Put(ctx, key, 2, "Q"))
	require.NoError(t, c.Close())

	e, err = NewEncoder(cfg, true)
	require.NoError(t, err)
	defer e.Close()
	again, err := e.Encode(ctx, "ok")
	require.NoError(t, err)
	out, err := malbolge.Execute(again)
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, filepath.Join(cfg.Dir, ".apophis", "encodings.db"), cfg.CachePath())
}
