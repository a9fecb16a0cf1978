package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	apophis "github.com/djlacavera21/Apophis"
	"github.com/djlacavera21/Apophis/hybrid"
	"github.com/djlacavera21/Apophis/malbolge"
	"github.com/djlacavera21/Apophis/script"
	"github.com/djlacavera21/Apophis/snapshot"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func newRunCmd() *cobra.Command {
	var envIn, envOut string
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Run a hybrid program (default " + hybrid.DefaultPath + ")",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fail(cmd, err)
			}
			path := hybrid.DefaultPath
			if len(args) == 1 {
				path = args[0]
			}
			src, err := hybrid.LoadFile(path)
			if err != nil {
				return fail(cmd, err)
			}

			env := script.Env{}
			if envIn != "" {
				if env, err = snapshot.Load(envIn); err != nil {
					return fail(cmd, err)
				}
			}

			d, err := apophis.NewDispatcher(cfg)
			if err != nil {
				return fail(cmd, err)
			}
			ctx, cancel := signalContext()
			defer cancel()

			res, runErr := d.Run(ctx, src, env)
			fmt.Fprint(cmd.OutOrStdout(), res.Output)
			if envOut != "" {
				if err := snapshot.Save(envOut, res.Env); err != nil {
					return fail(cmd, err)
				}
			}
			if runErr != nil {
				return fail(cmd, fmt.Errorf("%s: %w", path, runErr))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&envIn, "env-in", "", "start from the environment in this snapshot")
	cmd.Flags().StringVar(&envOut, "env-out", "", "write the final environment to this snapshot")
	return cmd
}

func newExecCmd() *cobra.Command {
	var (
		expr     string
		input    string
		maxSteps uint64
		trace    bool
	)
	cmd := &cobra.Command{
		Use:   "exec [file]",
		Short: "Run exotic VM source",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fail(cmd, err)
			}
			src := expr
			switch {
			case len(args) == 1 && expr != "":
				return fail(cmd, errors.New("give a file or -e, not both"))
			case len(args) == 1:
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fail(cmd, err)
				}
				src = string(data)
			case expr == "":
				return fail(cmd, errors.New("nothing to run: give a file or -e source"))
			}

			opts := apophis.ExoticOptions(cfg)
			var in io.Reader = cmd.InOrStdin()
			if cmd.Flags().Changed("input") {
				in = strings.NewReader(input)
			}
			opts = append(opts, malbolge.WithInput(in))
			if maxSteps > 0 {
				opts = append(opts, malbolge.WithMaxSteps(maxSteps))
			}
			if trace {
				w := cmd.ErrOrStderr()
				opts = append(opts, malbolge.WithTrace(func(tr malbolge.Trace) {
					fmt.Fprintf(w, "%8d  c=%-5d a=%-5d d=%-5d [c]=%-5d %s\n", tr.Step, tr.C, tr.A, tr.D, tr.Cell, tr.Op)
				}))
			}

			ctx, cancel := signalContext()
			defer cancel()
			res, runErr := malbolge.Run(ctx, src, opts...)
			if res != nil {
				fmt.Fprint(cmd.OutOrStdout(), res.Output)
			}
			if runErr != nil {
				return fail(cmd, runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&expr, "expr", "e", "", "source to run instead of a file")
	cmd.Flags().StringVar(&input, "input", "", "text fed to input instructions (default: standard input)")
	cmd.Flags().Uint64Var(&maxSteps, "max-steps", 0, "stop after this many instructions (0 = config or unlimited)")
	cmd.Flags().BoolVar(&trace, "trace", false, "print every instruction to standard error")
	return cmd
}

func newEncodeCmd() *cobra.Command {
	var (
		cachePath string
		noCache   bool
	)
	cmd := &cobra.Command{
		Use:   "encode <text>",
		Short: "Print exotic VM source whose output is text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fail(cmd, err)
			}
			if cachePath != "" {
				if cfg.Encoder.Cache, err = filepath.Abs(cachePath); err != nil {
					return fail(cmd, err)
				}
			}
			enc, err := apophis.NewEncoder(cfg, !noCache)
			if err != nil {
				return fail(cmd, err)
			}
			defer enc.Close()

			src, err := enc.Encode(cmd.Context(), args[0])
			if err != nil {
				return fail(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), src)
			return nil
		},
	}
	cmd.Flags().StringVar(&cachePath, "cache", "", "encoding cache file (default from config)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "neither read nor write the encoding cache")
	return cmd
}

func newCryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "crypt <text>",
		Short: "Apply the post-execution rewrite table to every printable character",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), malbolge.Encrypt(args[0]))
			return nil
		},
	}
}

func newParseCmd() *cobra.Command {
	var dialect string
	cmd := &cobra.Command{
		Use:   "parse <file>",
		Short: "Print the syntax tree of a script file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := script.ParseDialect(dialect)
			if err != nil {
				return fail(cmd, err)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fail(cmd, err)
			}
			prog, err := script.Parse(string(data), d)
			if err != nil {
				return fail(cmd, err)
			}
			fmt.Fprint(cmd.OutOrStdout(), script.Dump(prog))
			return nil
		},
	}
	cmd.Flags().StringVar(&dialect, "dialect", "python", "script dialect: python or ruby")
	return cmd
}

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [file]",
		Short: "Report problems in a hybrid program without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := hybrid.DefaultPath
			if len(args) == 1 {
				path = args[0]
			}
			src, err := hybrid.LoadFile(path)
			if err != nil {
				return fail(cmd, err)
			}
			diags := hybrid.Check(src)
			for _, d := range diags {
				fmt.Fprintf(cmd.OutOrStdout(), "%s:%s\n", path, d)
			}
			if len(diags) > 0 {
				return fail(cmd, fmt.Errorf("%d problems", len(diags)))
			}
			return nil
		},
	}
}
