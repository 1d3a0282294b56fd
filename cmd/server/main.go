package main

import (
	"fmt"
	"os"
	"time"

	"github.com/codingconcepts/env"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/golden-vcr/auth"
	"github.com/golden-vcr/server-common/entry"

	"github.com/carbondale-church/archiver/internal/admin"
	"github.com/carbondale-church/archiver/internal/rules"
	"github.com/carbondale-church/archiver/internal/runner"
	"github.com/carbondale-church/archiver/internal/setup"
	"github.com/carbondale-church/archiver/internal/status"
)

type Config struct {
	BindAddr   string `env:"BIND_ADDR"`
	ListenPort uint16 `env:"LISTEN_PORT" default:"5010"`

	AuthURL string `env:"AUTH_URL" default:"http://localhost:5002"`

	RunInterval string `env:"RUN_INTERVAL" default:"15m"`

	BoxcastClientID     string `env:"BOXCAST_CLIENT_ID" required:"true"`
	BoxcastClientSecret string `env:"BOXCAST_CLIENT_SECRET" required:"true"`
	BoxcastAPIURL       string `env:"BOXCAST_API_URL" default:"https://rest.boxcast.com"`
	BoxcastAuthURL      string `env:"BOXCAST_AUTH_URL" default:"https://rest.boxcast.com/oauth2/token"`

	DiscordWebhookURL string `env:"DISCORD_WEBHOOK_URL"`

	DownloadDir      string `env:"DOWNLOAD_DIR" required:"true"`
	StateBackend     string `env:"STATE_BACKEND" default:"file"`
	StateFile        string `env:"STATE_FILE" default:"boxcast_state.json"`
	StateLockTimeout string `env:"STATE_LOCK_TIMEOUT" default:"10m"`

	DatabaseHost     string `env:"PGHOST"`
	DatabasePort     int    `env:"PGPORT" default:"5432"`
	DatabaseName     string `env:"PGDATABASE"`
	DatabaseUser     string `env:"PGUSER"`
	DatabasePassword string `env:"PGPASSWORD"`
	DatabaseSslMode  string `env:"PGSSLMODE"`

	RmqHost     string `env:"RMQ_HOST"`
	RmqPort     int    `env:"RMQ_PORT" default:"5672"`
	RmqVhost    string `env:"RMQ_VHOST" default:"/"`
	RmqUser     string `env:"RMQ_USER"`
	RmqPassword string `env:"RMQ_PASSWORD"`

	LocalTimezone        string `env:"LOCAL_TIMEZONE" default:"America/Chicago"`
	StartDate            string `env:"START_DATE"`
	DownloadPollInterval string `env:"DOWNLOAD_POLL_INTERVAL" default:"30s"`
	DownloadTimeout      string `env:"DOWNLOAD_TIMEOUT" default:"1h"`
	RulesFile            string `env:"RULES_FILE"`
	ReportWeekday        string `env:"REPORT_WEEKDAY" default:"Monday"`
	DryRun               bool   `env:"DRY_RUN"`
}

func main() {
	app, ctx := entry.NewApplication("boxcast-archiver")
	defer app.Stop()

	// Parse config from environment variables
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		app.Fail("Failed to load .env file", err)
	}
	config := Config{}
	if err := env.Set(&config); err != nil {
		app.Fail("Failed to load config", err)
	}
	runInterval, err := time.ParseDuration(config.RunInterval)
	if err != nil {
		app.Fail("Failed to parse RUN_INTERVAL", err)
	}
	if runInterval <= 0 {
		app.Fail("Invalid RUN_INTERVAL", fmt.Errorf("%w: got %s", runner.ErrInvalidInterval, runInterval))
	}

	// Wire up the BoxCast client, state store, and notifiers that a run needs
	stack, err := setup.Build(ctx, app.Log(), setup.Options{
		BoxcastClientID:     config.BoxcastClientID,
		BoxcastClientSecret: config.BoxcastClientSecret,
		BoxcastAPIURL:       config.BoxcastAPIURL,
		BoxcastTokenURL:     config.BoxcastAuthURL,
		DiscordWebhookURL:   config.DiscordWebhookURL,
		DownloadDir:         config.DownloadDir,
		StateBackend:        config.StateBackend,
		StateFile:           config.StateFile,
		StateLockTimeout:    config.StateLockTimeout,
		DatabaseHost:        config.DatabaseHost,
		DatabasePort:        config.DatabasePort,
		DatabaseName:        config.DatabaseName,
		DatabaseUser:        config.DatabaseUser,
		DatabasePassword:    config.DatabasePassword,
		DatabaseSslMode:     config.DatabaseSslMode,
		RmqHost:             config.RmqHost,
		RmqPort:             config.RmqPort,
		RmqVhost:            config.RmqVhost,
		RmqUser:             config.RmqUser,
		RmqPassword:         config.RmqPassword,
		LocalTimezone:       config.LocalTimezone,
		StartDate:           config.StartDate,
		PollInterval:        config.DownloadPollInterval,
		DownloadTimeout:     config.DownloadTimeout,
		RulesFile:           config.RulesFile,
		ReportWeekday:       config.ReportWeekday,
		DryRun:              config.DryRun,
	})
	if err != nil {
		app.Fail("Failed to initialize archiver", err)
	}
	defer stack.Close()

	// Initialize an auth client so we can require broadcaster-level access in order to
	// call the admin-only API
	authClient, err := auth.NewClient(ctx, config.AuthURL)
	if err != nil {
		app.Fail("Failed to initialize auth client", err)
	}

	// Start setting up our HTTP handlers, using gorilla/mux for routing
	r := mux.NewRouter()

	// Anyone can check the status of the most recent run
	{
		statusServer := status.NewServer(stack.Runner)
		statusServer.RegisterRoutes(r)
	}

	// The broadcaster can trigger a run on demand
	{
		adminServer := admin.NewServer(stack.Runner)
		adminServer.RegisterRoutes(authClient, r.PathPrefix("/admin").Subrouter())
	}

	r.Path("/metrics").Methods("GET").Handler(promhttp.Handler())

	// Run periodically, reload rules when the rules file changes, and handle incoming
	// HTTP connections, until our top-level context is canceled
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return stack.Runner.Loop(ctx, runInterval, time.Now)
	})
	g.Go(func() error {
		return rules.Watch(ctx, app.Log(), config.RulesFile, rules.DefaultDebounce, stack.Runner.SetRules)
	})
	g.Go(func() error {
		entry.RunServer(ctx, app.Log(), r, config.BindAddr, config.ListenPort)
		return nil
	})
	if err := g.Wait(); err != nil {
		app.Fail("Archiver server exited with error", err)
	}
}
