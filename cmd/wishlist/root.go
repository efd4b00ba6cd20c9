package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/maltedev/wishlist-scraper/internal/browser"
	"github.com/maltedev/wishlist-scraper/internal/config"
	"github.com/maltedev/wishlist-scraper/internal/database"
	"github.com/maltedev/wishlist-scraper/internal/database/sqlite"
	"github.com/maltedev/wishlist-scraper/internal/events"
	"github.com/maltedev/wishlist-scraper/internal/service"
	"github.com/maltedev/wishlist-scraper/internal/session"
	"github.com/maltedev/wishlist-scraper/internal/sharelinks"
	"github.com/maltedev/wishlist-scraper/internal/writer"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

const appName = "wishlist"

// Flags override the matching environment settings when set.
type AppFlags struct {
	Sandbox string
	DBPath  string
	Verbose bool
}

var Flags AppFlags

var rootCmd = &cobra.Command{
	Use:           appName,
	Short:         "Product link classification and extraction for wishlists",
	Long:          `Classifies shared shopping links, extracts product data from supported stores and saves it into wishlists.`,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&Flags.Sandbox, "sandbox", "", `rendering sandbox: "browser" or "static" (default from EXTRACTION_SANDBOX)`)
	rootCmd.PersistentFlags().StringVar(&Flags.DBPath, "db", "", "SQLite database path (default from DB_SQLITE_PATH)")
	rootCmd.PersistentFlags().BoolVarP(&Flags.Verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd, classifyCmd, scrapeCmd, addCmd, wishlistsCmd)
}

// app holds the components shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   database.Store
	sandbox session.Sandbox
	sink    *sharelinks.Sink
	service *service.Service
	closers []io.Closer
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if Flags.Sandbox != "" {
		cfg.Extraction.Sandbox = Flags.Sandbox
	}
	if Flags.DBPath != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.SQLitePath = Flags.DBPath
	}
	if Flags.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newApp builds the component graph. The sandbox is only started when
// withSandbox is set, since launching a browser is expensive.
func newApp(ctx context.Context, withSandbox bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := cfg.Logging.NewLogger()
	slog.SetDefault(logger)

	a := &app{cfg: cfg, logger: logger}

	if err := a.openStore(ctx); err != nil {
		a.Close()
		return nil, err
	}

	if withSandbox {
		if err := a.openSandbox(); err != nil {
			a.Close()
			return nil, err
		}
	}

	emitter, err := a.openEmitter(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.sink = sharelinks.NewSink(cfg.Extraction.SharedLinksSize)

	sess := session.New(a.sandbox, session.Options{
		Timeout: cfg.Extraction.Timeout,
		Logger:  logger,
		OnTransition: func(id string, from, to session.State) {
			logger.Debug("session transition", "session_id", id, "from", from, "to", to)
		},
	})

	a.service = service.New(sess, writer.New(a.store, logger), a.sink, emitter, service.Config{
		MaxRetries:      uint64(cfg.Extraction.MaxRetries),
		InitialInterval: cfg.Extraction.RetryDelay,
		MaxInterval:     cfg.Extraction.RetryMaxInterval(),
		CacheSize:       cfg.Cache.Size,
		CacheTTL:        cfg.Cache.TTL,
		RateLimitMin:    cfg.Extraction.RateLimitMin,
		RateLimitMax:    cfg.Extraction.RateLimitMax,
		SettleDelay:     cfg.Extraction.SettleDelay,
	}, logger)

	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Database.Driver {
	case config.DriverPostgres:
		db, err := database.New(ctx, database.Config{
			Host:     a.cfg.Database.Host,
			Port:     a.cfg.Database.Port,
			User:     a.cfg.Database.User,
			Password: a.cfg.Database.Password,
			Database: a.cfg.Database.DBName,
			SSLMode:  a.cfg.Database.SSLMode,
			MaxConns: int32(a.cfg.Database.MaxConns),
		})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return err
		}
		a.store = db
	default:
		store, err := sqlite.New(a.cfg.Database.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		a.store = store
	}
	a.closers = append(a.closers, a.store)
	return nil
}

func (a *app) openSandbox() error {
	if a.cfg.Extraction.Sandbox == config.SandboxStatic {
		a.sandbox = browser.NewStatic(browser.StaticOptions{
			Timeout:   a.cfg.Extraction.Timeout,
			UserAgent: a.cfg.Browser.UserAgent,
		})
		return nil
	}

	opts := browser.DefaultOptions()
	opts.Headless = a.cfg.Browser.Headless
	opts.Timeout = a.cfg.Extraction.Timeout
	opts.ViewportWidth = a.cfg.Browser.ViewportWidth
	opts.ViewportHeight = a.cfg.Browser.ViewportHeight
	opts.AcceptLanguage = a.cfg.Browser.AcceptLanguage
	opts.TimezoneID = a.cfg.Browser.TimezoneID
	opts.Locale = a.cfg.Browser.Locale
	if a.cfg.Browser.UserAgent != "" {
		opts.UserAgent = a.cfg.Browser.UserAgent
	}

	b, err := browser.New(opts)
	if err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	a.sandbox = b
	a.closers = append(a.closers, b)
	return nil
}

func (a *app) openEmitter(ctx context.Context) (events.Emitter, error) {
	if a.cfg.Redis.Addr == "" {
		a.logger.Debug("redis not configured, events disabled")
		return events.Nop{}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	pub := events.NewPublisher(client, a.cfg.Redis.Stream, a.logger)
	a.closers = append(a.closers, pub)
	return pub, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
