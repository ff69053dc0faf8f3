package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/panyam/questauth/authserver"
)

func newStubServerCmd(a *app) *cobra.Command {
	var (
		addr         string
		clientID     string
		redirectURLs []string
		tokenExpiry  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "stub-server",
		Short: "Run a local authorization and API server for testing",
		Long: `Run a local authorization server with a small protected API.

Point auth_base_url at http://<addr>/oauth2/ to use it. Authorization is
granted without a consent page.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := a.logger()
			defer logger.Sync()

			srv, err := authserver.New(authserver.Config{
				ClientID:          clientID,
				RedirectURLs:      redirectURLs,
				AccessTokenExpiry: tokenExpiry,
			}, authserver.WithLogger(logger))
			if err != nil {
				return err
			}

			lis, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cmd, lis, srv, logger)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().StringVar(&clientID, "client-id", "questauth-dev", "Client id to accept")
	cmd.Flags().StringSliceVar(&redirectURLs, "redirect-url", nil, "Accepted redirect URLs (default any)")
	cmd.Flags().DurationVar(&tokenExpiry, "token-expiry", authserver.DefaultAccessTokenExpiry, "Access token lifetime")
	return cmd
}

// serve runs handler on lis until ctx is done.
func serve(ctx context.Context, cmd *cobra.Command, lis net.Listener, handler http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	base := "http://" + lis.Addr().String()
	fmt.Fprintf(cmd.OutOrStdout(), "auth_base_url: %s/oauth2/\n", base)
	logger.Info("stub server listening", zap.String("addr", lis.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
