package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"

	"cipherlink/internal/app"
)

var (
	v       = viper.New()
	wire    *app.Wire
	logFile string
)

func Execute() error {
	root := &cobra.Command{
		Use:           "cipherlink",
		Short:         "Link devices to an end-to-end encrypted account",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(v)
			if err != nil {
				return err
			}
			if err := app.InitLog(cfg.LogLevel, logFile); err != nil {
				return err
			}
			wire, err = app.NewWire(cfg)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if wire == nil {
				return nil
			}
			return wire.Close()
		},
	}

	pf := root.PersistentFlags()
	pf.String("home", "", "config dir (default ~/.cipherlink)")
	pf.StringP("passphrase", "p", "", "passphrase protecting the key store")
	pf.String("relay", "", "coordination service base URL (e.g. http://127.0.0.1:8080)")
	pf.String("database", "", "account record database (sqlite://<path> or postgres://...)")
	pf.String("log-level", "", "trace, debug, info, warn or error")
	pf.StringVar(&logFile, "log", "-", "log file, - for stdout")
	_ = v.BindPFlag(app.KeyHome, pf.Lookup("home"))
	_ = v.BindPFlag(app.KeyPassphrase, pf.Lookup("passphrase"))
	_ = v.BindPFlag(app.KeyRelayURL, pf.Lookup("relay"))
	_ = v.BindPFlag(app.KeyDatabase, pf.Lookup("database"))
	_ = v.BindPFlag(app.KeyLogLevel, pf.Lookup("log-level"))

	root.AddCommand(
		initCmd(),
		fingerprintCmd(),
		registerCmd(),
		linkDeviceCmd(),
		awaitLinkCmd(),
		accountCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		jww.ERROR.Printf("%v", err)
		return err
	}
	return nil
}
