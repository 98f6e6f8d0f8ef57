package cmd

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/KaramelBytes/analytica-cli/internal/devserver"
	"github.com/KaramelBytes/analytica-cli/internal/service"
	"github.com/spf13/cobra"
)

var (
	serveAddr  string
	serveRate  float64
	serveBurst int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local analysis engine over the analysis service's HTTP API",
	Long: `serve runs the built-in engine behind the same routes as the analysis service
(/api/v1/upload, /api/v1/analizar/cuantitativo, /api/v1/analizar/pareto, /api/v1/health),
so the remote engine can be used without the production service.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, rc := runtimeConfig(cfg)
		addr := serveAddr
		if addr == "" && cfg != nil {
			addr = cfg.ServeAddr
		}
		if addr == "" {
			addr = "127.0.0.1:8000"
		}
		local, err := service.NewLocal(service.LocalOptions{
			DataDir:     rc.DataDir,
			PreviewRows: rc.PreviewRows,
			MaxRows:     rc.MaxRows,
			Sheet:       rc.Sheet,
			Logger:      slog.Default(),
		})
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		srv := devserver.New(local, devserver.Options{Logger: slog.Default(), RateLimit: serveRate, Burst: serveBurst})
		return srv.ListenAndServe(ctx, addr, func(a net.Addr) {
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Serving on http://%s%s (data in %s)\n", a, devserver.Prefix, local.DataDir())
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config serve_addr)")
	serveCmd.Flags().Float64Var(&serveRate, "rate-limit", 0, "requests per second before answering 429 (0 = unlimited)")
	serveCmd.Flags().IntVar(&serveBurst, "burst", 5, "burst size for --rate-limit")
}
