// Package cli implements the cabsd server daemon's command-line entrypoint.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cabshq/cabs/cmd/cabsd/config"
	"github.com/cabshq/cabs/internal/auth"
	"github.com/cabshq/cabs/internal/cache"
	"github.com/cabshq/cabs/internal/claims"
	"github.com/cabshq/cabs/internal/contracts"
	"github.com/cabshq/cabs/internal/coreapi"
	"github.com/cabshq/cabs/internal/httpapi"
)

// Build information set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "cabsd",
	Short: "Content-addressed blob storage server",
	Long: `cabsd serves the cabs HTTP API: PUT/GET/HEAD/DELETE on content-addressed
blobs, with per-user claims, quota enforcement and a near/far cache tier
fronting whatever backend is configured.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.Flags().String("listen-address", "", "address to listen on (default :8080)")
	rootCmd.Flags().Bool("debug", false, "mount /debug/fgprof")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose debug logging")

	//nolint:errcheck // flags are defined above, so Lookup will never return nil
	viper.BindPFlag("listen_address", rootCmd.Flags().Lookup("listen-address"))
	//nolint:errcheck
	viper.BindPFlag("debug", rootCmd.Flags().Lookup("debug"))
	//nolint:errcheck
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

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

	viper.SetEnvPrefix("CABSD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

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
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return err
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if err := viper.Unmarshal(&cfg); err != nil {
		return config.Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if cfg.Pyroscope.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName:   "cabsd",
			ServerAddress:     cfg.Pyroscope.ServerAddress,
			BasicAuthUser:     cfg.Pyroscope.BasicAuthUser,
			BasicAuthPassword: cfg.Pyroscope.BasicAuthPassword,
			Logger:            pyroscope.StandardLogger,
		})
		if err != nil {
			return fmt.Errorf("start pyroscope: %w", err)
		}
		defer profiler.Stop()
	}

	ctx, cancel := signalContext()
	defer cancel()

	rows, err := buildRowStore(cfg.Backend.Path)
	if err != nil {
		return fmt.Errorf("open row store: %w", err)
	}
	defer rows.Close()

	store, err := buildBackend(ctx, cfg.Backend, rows)
	if err != nil {
		return fmt.Errorf("build backend: %w", err)
	}

	var serving contracts.BlobBackend = store
	if cfg.Cache.Enabled {
		policy := cache.LRU
		if cfg.Cache.Policy == "lfu" {
			policy = cache.LFU
		}
		near := newInMemoryNear()
		cacheStore := cache.NewWithPolicy(near, store, rows, cfg.Cache.MaxSize, policy, logger)
		serving = cacheStore
		go runFlushJanitor(ctx, cacheStore, cfg.Cache.FlushInterval, logger)
	}

	resolver := auth.NewStaticResolver()
	quotaSource := auth.NewStaticQuotaSource()
	for _, u := range cfg.Users {
		resolver.Register(u.Token, userFromConfig(u))
		if u.Quota > 0 {
			quotaSource.Set(u.ID, u.Quota)
		}
	}

	svc := coreapi.New(serving, rows, quotaSource, coreapi.WithLogger(logger))

	var opts []httpapi.Option
	opts = append(opts, httpapi.WithLogger(logger))
	if cfg.Debug {
		opts = append(opts, httpapi.WithDebugEndpoints())
	}
	server := httpapi.NewServer(svc, resolver, opts...)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      server,
		ReadTimeout:  0, // blob uploads can take arbitrarily long
		WriteTimeout: 0,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cabsd listening", "address", cfg.ListenAddress, "version", version)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}
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

// runFlushJanitor periodically pushes every pending cache row to the far
// tier, per spec.md §9's background-flush supplement: a crash between a
// cache write and its push would otherwise leave the row store and the far
// tier inconsistent until the next explicit Push/Flush call.
func runFlushJanitor(ctx context.Context, store *cache.Store, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.Flush(ctx); err != nil {
				logger.Warn("cache flush failed", "error", err)
			}
		}
	}
}
