// Package cli implements the cabsctl command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cabshq/cabs/cmd/cabsctl/cli/config"
	"github.com/cabshq/cabs/cmd/cabsctl/client"
)

// Build information set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// cfgFile is the path to the config file (set via --config flag).
var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cabsctl",
	Short: "Put, get and list blobs on a cabsd server",
	Long: `cabsctl is a CLI client for cabsd, the content-addressed blob storage
server. It uploads and downloads blobs identified by their BLAKE3 digest,
and reports per-user storage usage and quota.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().String("server", "", "cabsd server address (e.g. http://localhost:8080)")
	rootCmd.PersistentFlags().String("token", "", "bearer credential presented to cabsd")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose debug logging")
	rootCmd.PersistentFlags().String("progress", "auto", "progress bar mode: auto, tty, plain")

	//nolint:errcheck // flags are defined above, so Lookup will never return nil
	viper.BindPFlag("server.address", rootCmd.PersistentFlags().Lookup("server"))
	//nolint:errcheck
	viper.BindPFlag("server.token", rootCmd.PersistentFlags().Lookup("token"))
	//nolint:errcheck
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	//nolint:errcheck
	viper.BindPFlag("progress", rootCmd.PersistentFlags().Lookup("progress"))

	rootCmd.Version = version
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		configDir, err := config.Dir()
		if err == nil {
			viper.AddConfigPath(configDir)
		}
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Environment variables: CABSCTL_SERVER_ADDRESS, CABSCTL_SERVER_TOKEN, etc.
	viper.SetEnvPrefix("CABSCTL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Config file is optional - don't fail if missing.
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config:", viper.ConfigFileUsed())
		}
	}
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, formatError(err))
	}
	return err
}

// newClient creates a cabsctl client with configured server address and
// credential.
func newClient() (*client.Client, error) {
	address := viper.GetString("server.address")
	if address == "" {
		return nil, errors.New("no server configured: pass --server or set server.address in the config file")
	}
	return client.New(address, viper.GetString("server.token")), nil
}

// signalContext returns a context that is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// formatError converts cabsctl client errors to user-friendly messages.
func formatError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, client.ErrNotFound):
		return "Error: blob not found"
	case errors.Is(err, client.ErrUnauthorized):
		return "Error: authentication failed (check your --token)"
	case errors.Is(err, client.ErrDigestMismatch):
		return fmt.Sprintf("Error: digest mismatch: %v", err)
	case errors.Is(err, client.ErrQuotaExceeded):
		return "Error: quota exceeded"
	case errors.Is(err, context.Canceled):
		return "Error: operation canceled"
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
