package cmd

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/jrsteele09/go-auth-session/client"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

var (
	callEmail       string
	callPassword    string
	callRegister    bool
	callMethod      string
	callData        string
	callLogout      bool
	callShowMetrics bool
)

func init() {
	flags := callCmd.Flags()
	flags.StringVarP(&callEmail, "email", "e", os.Getenv("SESSION_EMAIL"), "account email")
	flags.StringVarP(&callPassword, "password", "p", "", "account password (default SESSION_PASSWORD)")
	flags.BoolVar(&callRegister, "register", false, "register the account before logging in")
	flags.StringVarP(&callMethod, "method", "X", http.MethodGet, "HTTP method")
	flags.StringVarP(&callData, "data", "d", "", "JSON request body")
	flags.BoolVar(&callLogout, "logout", true, "log out after the request")
	flags.BoolVar(&callShowMetrics, "metrics", false, "print session metrics when done")
	rootCmd.AddCommand(callCmd)
}

var callCmd = &cobra.Command{
	Use:   "call [path]",
	Short: "Log in, perform one authenticated request and print the response",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if callPassword == "" {
			callPassword = os.Getenv("SESSION_PASSWORD")
		}
		path := "/me"
		if len(args) == 1 {
			path = args[0]
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		registry := prometheus.NewRegistry()
		c, err := client.NewFromConfig(cfg, client.WithLogger(logger), client.WithRegisterer(registry))
		if err != nil {
			return err
		}
		defer c.Close()

		if callRegister {
			summary, err := c.Register(ctx, callEmail, callPassword)
			if err != nil {
				return errors.Wrap(err, "register")
			}
			logger.Info().Str("email", summary.Email).Str("user_id", string(summary.ID)).Msg("registered")
		}

		profile, err := c.Login(ctx, callEmail, callPassword)
		if err != nil {
			return errors.Wrap(err, "login")
		}
		logger.Info().Str("email", profile.Email).Msg("logged in")

		if err := request(ctx, c, callMethod, path, callData, cmd.OutOrStdout()); err != nil {
			return err
		}

		if callLogout {
			if err := c.Logout(ctx); err != nil {
				return errors.Wrap(err, "logout")
			}
		}
		if callShowMetrics {
			return writeMetrics(registry, cmd.OutOrStdout())
		}
		return nil
	},
}

func request(ctx context.Context, c *client.Client, method, path, data string, out io.Writer) error {
	var body io.Reader
	if data != "" {
		body = bytes.NewBufferString(data)
	}
	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), path, body)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")
	if data != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	logger.Info().Int("status", resp.StatusCode).Str("path", path).Msg("response")
	if _, err := io.Copy(out, resp.Body); err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return errors.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return nil
}

func writeMetrics(gatherer prometheus.Gatherer, out io.Writer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	enc := expfmt.NewEncoder(out, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return errors.Wrap(err, "encode metrics")
		}
	}
	return nil
}
