package cli

import (
	"github.com/spf13/cobra"

	"github.com/gonglijing/nbconsole/internal/app"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		listen string
		dbPath string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the reference gateway backend (REST API, runtime, metrics)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := opts.cfg
			if cmd.Flags().Changed("listen") {
				cfg.ListenAddr = listen
			}
			if cmd.Flags().Changed("db") {
				cfg.DBPath = dbPath
			}
			opts.log.Info("Starting nbconsole", "version", Version, "config", cfg.String())
			defer func() { _ = opts.log.Sync() }()
			return app.Run(cmd.Context(), cfg, opts.log)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides listen_addr)")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (overrides db_path)")
	return cmd
}
