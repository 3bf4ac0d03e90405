package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-session/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveRotate  bool
	serveSecret  string
	serveOrigins []string
)

func init() {
	serveCmd.Flags().StringVarP(&serveAddr, "addr", "a", "", "address to listen on (default LISTEN_ADDR or :8001)")
	serveCmd.Flags().BoolVar(&serveRotate, "rotate", false, "rotate refresh tokens on /refresh")
	serveCmd.Flags().StringVar(&serveSecret, "secret", "", "HMAC secret for access tokens (default TOKEN_SECRET, random when both are empty)")
	serveCmd.Flags().StringSliceVar(&serveOrigins, "allowed-origin", []string{"http://localhost:3000"}, "CORS allowed origin")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:     "fake-backend",
	Aliases: []string{"serve"},
	Short:   "Run the in-memory reference resource server",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := serveAddr
		if addr == "" {
			addr = cfg.GetListenAddr()
		}

		if serveSecret == "" {
			serveSecret = os.Getenv("TOKEN_SECRET")
		}
		opts := []server.Option{
			server.WithLogger(logger),
			server.WithSigningSecret(serveSecret),
			server.WithAllowedOrigins(serveOrigins...),
		}
		if cmd.Flags().Changed("rotate") {
			opts = append(opts, server.WithRefreshRotation(serveRotate))
		}

		displayAppname(cfg.GetAppName())
		srv := &http.Server{
			Addr:              addr,
			Handler:           server.NewFromConfig(cfg, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- listenAndServe(srv)
		}()

		select {
		case err := <-errCh:
			return err
		case <-waitForStopSignal():
		}
		return shutdown(srv)
	},
}

func listenAndServe(srv *http.Server) error {
	logger.Info().Str("addr", srv.Addr).Msg("server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(srv *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
