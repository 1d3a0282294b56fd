// Package setup assembles a Runner and its collaborators from the options shared by
// the archiver's entrypoints.
package setup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/exp/slog"

	"github.com/golden-vcr/server-common/db"
	"github.com/golden-vcr/server-common/rmq"

	"github.com/carbondale-church/archiver/internal/boxcast"
	"github.com/carbondale-church/archiver/internal/livestate"
	"github.com/carbondale-church/archiver/internal/notify"
	"github.com/carbondale-church/archiver/internal/rules"
	"github.com/carbondale-church/archiver/internal/runner"
)

var ErrInvalidOptions = errors.New("invalid options")

const (
	StateBackendFile     = "file"
	StateBackendPostgres = "postgres"
)

type Options struct {
	BoxcastClientID          string
	BoxcastClientSecret      string
	BoxcastAPIURL            string
	BoxcastTokenURL          string
	BoxcastRequestsPerSecond float64

	DiscordWebhookURL string

	DownloadDir      string
	StateBackend     string
	StateFile        string
	StateLockTimeout string

	DatabaseHost     string
	DatabasePort     int
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseSslMode  string

	// RmqHost enables event publishing to the boxcast-events exchange when set
	RmqHost     string
	RmqPort     int
	RmqVhost    string
	RmqUser     string
	RmqPassword string

	LocalTimezone   string
	StartDate       string
	PollInterval    string
	DownloadTimeout string
	RulesFile       string
	ReportWeekday   string
	DryRun          bool
}

// Stack is a fully-wired Runner along with the resources it holds open
type Stack struct {
	Runner   *runner.Runner
	Store    livestate.Store
	Rules    *rules.Rules
	Location *time.Location

	closers []func()
}

// Close releases database and AMQP connections in the reverse order they were opened
func (s *Stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func Build(ctx context.Context, logger *slog.Logger, opts Options) (*Stack, error) {
	s := &Stack{}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	cfg, err := runnerConfig(opts)
	if err != nil {
		return nil, err
	}
	s.Location = cfg.Location

	// Load holiday names and expected slots; the server watches this file for changes
	s.Rules, err = rules.Load(opts.RulesFile)
	if err != nil {
		return nil, err
	}

	// Persisted state lives in a local JSON file by default, or in Postgres when
	// several hosts share a download directory
	s.Store, err = s.openStore(ctx, opts)
	if err != nil {
		return nil, err
	}

	notifier, err := s.buildNotifier(logger, opts)
	if err != nil {
		return nil, err
	}

	requestsPerSecond := opts.BoxcastRequestsPerSecond
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	api := boxcast.NewClient(ctx, logger, boxcast.Config{
		APIURL:            opts.BoxcastAPIURL,
		TokenURL:          opts.BoxcastTokenURL,
		ClientID:          opts.BoxcastClientID,
		ClientSecret:      opts.BoxcastClientSecret,
		RequestsPerSecond: requestsPerSecond,
		RequestTimeout:    30 * time.Second,
		Retry:             boxcast.DefaultRetryConfig(),
	})

	s.Runner = runner.New(api, s.Store, notifier, logger, cfg, s.Rules)
	ok = true
	return s, nil
}

func runnerConfig(opts Options) (runner.Config, error) {
	if opts.DownloadDir == "" {
		return runner.Config{}, fmt.Errorf("%w: download directory is required", ErrInvalidOptions)
	}
	loc, err := time.LoadLocation(opts.LocalTimezone)
	if err != nil {
		return runner.Config{}, fmt.Errorf("%w: local timezone: %v", ErrInvalidOptions, err)
	}
	cfg := runner.Config{
		DownloadDir:   opts.DownloadDir,
		Location:      loc,
		ReportWeekday: time.Monday,
		DryRun:        opts.DryRun,
	}
	if opts.StartDate != "" {
		cfg.StartDate, err = time.ParseInLocation("2006-01-02", opts.StartDate, loc)
		if err != nil {
			return runner.Config{}, fmt.Errorf("%w: start date: %v", ErrInvalidOptions, err)
		}
	}
	if opts.ReportWeekday != "" {
		cfg.ReportWeekday, err = rules.ParseWeekday(opts.ReportWeekday)
		if err != nil {
			return runner.Config{}, fmt.Errorf("%w: report weekday: %v", ErrInvalidOptions, err)
		}
	}
	if cfg.PollInterval, err = parseDuration("poll interval", opts.PollInterval, 30*time.Second); err != nil {
		return runner.Config{}, err
	}
	if cfg.DownloadTimeout, err = parseDuration("download timeout", opts.DownloadTimeout, time.Hour); err != nil {
		return runner.Config{}, err
	}
	return cfg, nil
}

func parseDuration(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidOptions, name, err)
	}
	return d, nil
}

func (s *Stack) openStore(ctx context.Context, opts Options) (livestate.Store, error) {
	switch opts.StateBackend {
	case "", StateBackendFile:
		if opts.StateFile == "" {
			return nil, fmt.Errorf("%w: state file is required for the file backend", ErrInvalidOptions)
		}
		lockTimeout, err := parseDuration("state lock timeout", opts.StateLockTimeout, 10*time.Minute)
		if err != nil {
			return nil, err
		}
		return livestate.NewFileStore(opts.StateFile, lockTimeout), nil
	case StateBackendPostgres:
		connectionString := db.FormatConnectionString(
			opts.DatabaseHost,
			opts.DatabasePort,
			opts.DatabaseName,
			opts.DatabaseUser,
			opts.DatabasePassword,
			opts.DatabaseSslMode,
		)
		conn, err := sql.Open("postgres", connectionString)
		if err != nil {
			return nil, fmt.Errorf("failed to open sql.DB: %w", err)
		}
		s.closers = append(s.closers, func() { conn.Close() })
		if err := conn.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		store := livestate.NewPostgresStore(conn)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("failed to initialize state schema: %w", err)
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w: unknown state backend %q", ErrInvalidOptions, opts.StateBackend)
}

// buildNotifier always logs; Discord and AMQP delivery are added when configured,
// except on dry runs
func (s *Stack) buildNotifier(logger *slog.Logger, opts Options) (notify.Notifier, error) {
	notifiers := notify.Multi{&notify.Log{Logger: logger}}
	if opts.DryRun {
		return notifiers, nil
	}
	if opts.DiscordWebhookURL != "" {
		notifiers = append(notifiers, notify.NewDiscord(opts.DiscordWebhookURL))
	} else {
		logger.Warn("No Discord webhook configured; notifications will only be logged")
	}
	if opts.RmqHost != "" {
		amqpConn, err := amqp.Dial(rmq.FormatConnectionString(opts.RmqHost, opts.RmqPort, opts.RmqVhost, opts.RmqUser, opts.RmqPassword))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to AMQP server: %w", err)
		}
		s.closers = append(s.closers, func() { amqpConn.Close() })

		// Prepare a producer that we can use to send messages to the boxcast-events
		// exchange
		producer, err := rmq.NewProducer(amqpConn, "boxcast-events")
		if err != nil {
			return nil, fmt.Errorf("failed to initialize AMQP producer for boxcast-events: %w", err)
		}
		notifiers = append(notifiers, notify.NewPublisher(producer))
	}
	return notifiers, nil
}
