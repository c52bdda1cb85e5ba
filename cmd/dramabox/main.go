// Command dramabox serves the DramaBox web front-end.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ZaguanLabs/dramabox"
	"github.com/ZaguanLabs/dramabox/cache"
	"github.com/ZaguanLabs/dramabox/internal/profile"
	"github.com/ZaguanLabs/dramabox/server"
)

const shutdownTimeout = 10 * time.Second

// envReplacer maps flag names to environment variables: upstream-api is
// read from UPSTREAM_API.
var envReplacer = strings.NewReplacer("-", "_")

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:          dramabox.Name,
		Short:        dramabox.Description,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("mode", "prod", `mode of server, can be "prod" or "dev"`)
	flags.String("addr", "", "address of server")
	flags.Int("port", profile.DefaultPort, "port of server")
	flags.String("upstream-api", profile.DefaultUpstreamAPI, "root URL of the content API")
	flags.Duration("upstream-timeout", profile.DefaultUpstreamTimeout, "timeout of each content API call")
	flags.String("default-language", string(dramabox.DefaultLanguage), "language served when negotiation fails")
	flags.String("site-url", "", "public origin used in canonical links and the sitemap (default "+profile.DefaultSiteURL+")")
	flags.String("redis-url", "", "redis URL of the shared response cache (disabled when empty)")
	flags.String("cache-snapshot", "", "file the response caches are restored from and saved to")
	flags.Float64("rate-limit", 10, "API requests per second per client IP (0 disables)")
	flags.Int("rate-burst", 20, "API request burst per client IP")
	flags.StringSlice("trusted-proxies", nil, "proxy CIDRs whose X-Forwarded-For is trusted for the client IP")
	flags.StringSlice("download-hosts", nil, "media hosts the download proxy may fetch from (default: any public host)")
	flags.Bool("coalesce", true, "share one upstream call between concurrent cache misses")
	flags.Bool("warm", false, "prefetch the home feed of every language at start")
	flags.String("log-level", "info", "log level: debug, info, warn or error")

	if err := v.BindPFlags(flags); err != nil {
		panic(err)
	}
	v.SetEnvKeyReplacer(envReplacer)
	v.AutomaticEnv()

	rootCmd.AddCommand(newServeCommand(v), newVersionCommand())
	return rootCmd
}

func newServeCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := loadProfile(v)
			if err != nil {
				return err
			}
			logger := newLogger(p, cmd.ErrOrStderr())
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, p, logger)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", dramabox.Name, dramabox.FullVersion())
			if dramabox.BuildDate != "unknown" && dramabox.BuildDate != "" {
				fmt.Fprintf(out, "  built:   %s\n", dramabox.BuildDate)
			}
		},
	}
}

// loadProfile reads the profile from flags and environment and validates it.
func loadProfile(v *viper.Viper) (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:            v.GetString("mode"),
		Addr:            v.GetString("addr"),
		Port:            v.GetInt("port"),
		Version:         dramabox.Version,
		UpstreamAPI:     v.GetString("upstream-api"),
		UpstreamTimeout: v.GetDuration("upstream-timeout"),
		DefaultLanguage: v.GetString("default-language"),
		SiteURL:         v.GetString("site-url"),
		RedisURL:        v.GetString("redis-url"),
		CacheSnapshot:   v.GetString("cache-snapshot"),
		Coalesce:        v.GetBool("coalesce"),
		Warm:            v.GetBool("warm"),
		RateLimit:       v.GetFloat64("rate-limit"),
		RateBurst:       v.GetInt("rate-burst"),
		TrustedProxies:  v.GetStringSlice("trusted-proxies"),
		DownloadHosts:   v.GetStringSlice("download-hosts"),
		LogLevel:        v.GetString("log-level"),
	}
	p.FromEnv()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func newLogger(p *profile.Profile, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: p.SlogLevel()}
	if p.IsDev() {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func serve(ctx context.Context, p *profile.Profile, logger *slog.Logger) error {
	opts := []server.Option{server.WithLogger(logger)}
	if p.RedisURL != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{URL: p.RedisURL})
		if err != nil {
			logger.Warn("shared cache unavailable, continuing without it", "error", err)
		} else {
			defer rc.Close()
			opts = append(opts, server.WithSharedCache(rc))
		}
	}

	s, err := server.NewServer(ctx, p, opts...)
	if err != nil {
		return err
	}
	if p.CacheSnapshot != "" {
		restoreSnapshot(s.Registry(), p.CacheSnapshot, logger)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down server", "error", err)
	}
	if p.CacheSnapshot != "" {
		saveSnapshot(s.Registry(), p.CacheSnapshot, logger)
	}
	return nil
}

func restoreSnapshot(registry *cache.Registry, path string, logger *slog.Logger) {
	result, err := cache.NewImporter(registry).ImportFromFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("no cache snapshot to restore", "path", path)
		return
	}
	if err != nil {
		logger.Warn("failed to restore cache snapshot", "path", path, "error", err)
		return
	}
	logger.Info("cache snapshot restored", "path", path,
		"imported", result.Imported, "expired", result.Expired, "failed", result.Failed)
}

func saveSnapshot(registry *cache.Registry, path string, logger *slog.Logger) {
	err := cache.NewExporter(registry).ExportToFile(path, map[string]string{"version": dramabox.Version})
	if err != nil {
		logger.Error("failed to save cache snapshot", "path", path, "error", err)
		return
	}
	logger.Info("cache snapshot saved", "path", path)
}
