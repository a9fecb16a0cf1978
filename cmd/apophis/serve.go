package main

import (
	"github.com/spf13/cobra"

	apophis "github.com/djlacavera21/Apophis"
	"github.com/djlacavera21/Apophis/server"
)

func newLspCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Start the language server on standard input and output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Logging must stay off stdout, which carries the protocol.
			if _, err := loadConfig(); err != nil {
				return fail(cmd, err)
			}
			return server.NewLSP(apophis.Version).Run()
		},
	}
}

func newServeCmd() *cobra.Command {
	var (
		addr    string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the evaluation RPC API over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fail(cmd, err)
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}
			d, err := apophis.NewDispatcher(cfg)
			if err != nil {
				return fail(cmd, err)
			}
			enc, err := apophis.NewEncoder(cfg, true)
			if err != nil {
				return fail(cmd, err)
			}
			defer enc.Close()

			srv := server.New(
				server.WithDispatcher(d),
				server.WithEncoder(enc),
				server.WithExoticOptions(apophis.ExoticOptions(cfg)...),
				server.WithWorkers(workers),
			)
			defer srv.Stop()
			if err := srv.ListenAndServe(addr); err != nil {
				return fail(cmd, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :4567)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent evaluations (0 = one per CPU)")
	return cmd
}
