package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	apophis "github.com/djlacavera21/Apophis"
	"github.com/djlacavera21/Apophis/hybrid"
	"github.com/djlacavera21/Apophis/script"
)

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Interactive hybrid session keeping one environment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fail(cmd, err)
			}
			d, err := apophis.NewDispatcher(cfg)
			if err != nil {
				return fail(cmd, err)
			}

			history := ""
			if home, err := os.UserHomeDir(); err == nil {
				history = filepath.Join(home, ".apophis_history")
			}
			rl, err := readline.NewEx(&readline.Config{
				Prompt:      "apophis> ",
				HistoryFile: history,
				Stdout:      cmd.OutOrStdout(),
				Stderr:      cmd.ErrOrStderr(),
			})
			if err != nil {
				return fail(cmd, err)
			}
			defer rl.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "Apophis %s. ':' primary, ';' secondary, anything else exotic.\n", apophis.Version)
			fmt.Fprintln(cmd.OutOrStdout(), "Type .env to list bindings, .reset to clear them, .quit to leave.")

			r := &repl{dispatcher: d, env: script.Env{}, out: cmd.OutOrStdout()}
			for {
				if r.pending() {
					rl.SetPrompt("     ... ")
				} else {
					rl.SetPrompt("apophis> ")
				}
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					r.buf = nil
					continue
				}
				if errors.Is(err, io.EOF) {
					return nil
				}
				if err != nil {
					return fail(cmd, err)
				}
				if !r.feed(cmd, line) {
					return nil
				}
			}
		},
	}
}

// repl holds one interactive session.
type repl struct {
	dispatcher *hybrid.Dispatcher
	env        script.Env
	buf        []string // lines of an unfinished block
	out        io.Writer
}

func (r *repl) pending() bool { return len(r.buf) > 0 }

// feed handles one input line. It returns false when the session should
// end.
func (r *repl) feed(cmd *cobra.Command, line string) bool {
	if !r.pending() {
		switch strings.TrimSpace(line) {
		case ".quit", ".exit":
			return false
		case ".env":
			for _, name := range r.env.Names() {
				v := r.env[name]
				fmt.Fprintf(r.out, "%s = %s\n", name, script.Python.Inspect(v))
			}
			return true
		case ".reset":
			r.env = script.Env{}
			return true
		case "":
			return true
		}
	}

	// An empty line ends a block.
	if r.pending() && strings.TrimSpace(line) == "" {
		r.run(cmd, strings.Join(r.buf, "\n"))
		r.buf = nil
		return true
	}

	r.buf = append(r.buf, line)
	src := strings.Join(r.buf, "\n")
	if incomplete(src) {
		return true
	}
	r.buf = nil
	r.run(cmd, src)
	return true
}

func (r *repl) run(cmd *cobra.Command, src string) {
	res, err := r.dispatcher.Run(cmd.Context(), src, r.env)
	fmt.Fprint(r.out, res.Output)
	if res.Output != "" && !strings.HasSuffix(res.Output, "\n") {
		fmt.Fprintln(r.out)
	}
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	r.env = res.Env
}

// incomplete reports whether src ends inside an open script block and
// more lines should be read before running it. Colon-dialect blocks stay
// open until an empty line.
func incomplete(src string) bool {
	segs := hybrid.Segments(src)
	if len(segs) == 0 {
		return false
	}
	last := segs[len(segs)-1]
	if !last.Kind.IsScript() {
		return false
	}
	d := script.Python
	if last.Kind == hybrid.Secondary {
		d = script.Ruby
	}
	if d == script.Python && len(last.Lines) > 1 {
		return true
	}
	_, err := script.Parse(last.Text, d)
	var sf *script.SyntaxFault
	if !errors.As(err, &sf) {
		return false
	}
	return strings.Contains(sf.Msg, "end of input") || strings.Contains(sf.Msg, "indented block")
}
