package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/morler/repomuse/constants/lipgloss"
	"github.com/morler/repomuse/http_api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Expose scans and live progress over HTTP and WebSocket",
	Long: `The 'serve' command starts the HTTP API: scans, batch scans, cancellation,
progress polling, project listing and cache maintenance under /api, a WebSocket
progress stream at /api/ws and Prometheus metrics at /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		// the hub is the analyzer's progress sink, so it must exist before wiring
		hub := http_api.NewHub(nil)
		deps := handleRootCommand(cmd, hub)
		if deps == nil {
			return fmt.Errorf("initialization failed")
		}
		defer deps.Close()

		cfg := deps.Config.Server
		if addr != "" {
			cfg.Addr = addr
		}
		hub.SetOriginChecker(http_api.OriginChecker(cfg.AllowedOrigins))

		ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		srv := http_api.NewServer(cfg, deps.Analyzer, deps.Picker, hub, deps.Metrics)
		fmt.Println(lipgloss.Info.Render("Listening on http://" + srv.Addr()))

		err := srv.Run(ctx)
		deps.Analyzer.CancelAll()
		return err
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address, overrides server.addr")
	rootCmd.AddCommand(serveCmd)
}
