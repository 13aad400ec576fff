package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"cipherlink/internal/app"
	"cipherlink/internal/relay"
)

const shutdownGrace = 5 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		jww.ERROR.Printf("%v", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "relay",
		Short:        "Run the cipherlink coordination service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.InitLog(strings.ToLower(v.GetString("log_level")), "-"); err != nil {
				return err
			}
			srv := relay.NewServer(
				relay.WithCodeRateLimit(v.GetInt("rate_limit")),
				relay.WithCodeTTL(v.GetDuration("code_ttl")),
			)
			return serve(cmd.Context(), v.GetString("addr"), srv.Handler())
		},
	}

	v.SetEnvPrefix("CIPHERLINK_RELAY")
	v.AutomaticEnv()
	f := cmd.Flags()
	f.String("addr", ":8080", "listen address")
	f.Int("rate-limit", 60, "provisioning codes per minute per client IP")
	f.Duration("code-ttl", 10*time.Minute, "provisioning code lifetime")
	f.String("log-level", "info", "trace, debug, info, warn or error")
	_ = v.BindPFlag("addr", f.Lookup("addr"))
	_ = v.BindPFlag("rate_limit", f.Lookup("rate-limit"))
	_ = v.BindPFlag("code_ttl", f.Lookup("code-ttl"))
	_ = v.BindPFlag("log_level", f.Lookup("log-level"))
	return cmd
}

func serve(parent context.Context, addr string, h http.Handler) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	hs := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		jww.INFO.Printf("relay listening on %s", addr)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}
