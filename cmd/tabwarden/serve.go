package main

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"

	"github.com/krail/tabwarden/internal/appconfig"
	"github.com/krail/tabwarden/internal/engine"
	"github.com/krail/tabwarden/internal/host"
	"github.com/krail/tabwarden/internal/host/cdp"
	"github.com/krail/tabwarden/internal/host/extbridge"
	"github.com/krail/tabwarden/internal/hub"
	"github.com/krail/tabwarden/internal/server"
	"github.com/krail/tabwarden/internal/store"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tabwarden daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			path, err := resolveConfigPath(cfgPath)
			if err != nil {
				return err
			}
			cfg, err := appconfig.Load(path)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			st, err := store.Open(cfg.Storage.Backend, cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer func() { _ = st.Close() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var (
				src    host.Source
				bridge http.Handler
			)
			switch cfg.Host.Kind {
			case "cdp":
				cs := cdp.New(cdp.Options{
					URL:         cfg.Host.CDPURL,
					ExecPath:    cfg.Host.ExecPath,
					UserDataDir: cfg.Host.UserDataDir,
					Headless:    cfg.Host.Headless,
				}, logger)
				if err := cs.Start(ctx); err != nil {
					return fmt.Errorf("start devtools host: %w", err)
				}
				defer cs.Shutdown()
				src = cs
			default:
				b := extbridge.New(logger)
				defer b.Shutdown()
				src = b
				bridge = b.Handler()
			}

			h := hub.New(logger)
			eng := engine.New(st, src, h, logger)
			defer eng.Close()
			go eng.Run(ctx)

			srv := server.New(eng, h, bridge, cfg.Server.Addr, logger)
			logger.Info("daemon starting",
				"addr", cfg.Server.Addr,
				"host", cfg.Host.Kind,
				"storage", cfg.Storage.Backend)
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")
	return cmd
}
