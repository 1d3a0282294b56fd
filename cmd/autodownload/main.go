package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/codingconcepts/env"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"github.com/golden-vcr/server-common/entry"

	"github.com/carbondale-church/archiver"
	"github.com/carbondale-church/archiver/internal/classify"
	"github.com/carbondale-church/archiver/internal/notify"
	"github.com/carbondale-church/archiver/internal/paths"
	"github.com/carbondale-church/archiver/internal/rules"
	"github.com/carbondale-church/archiver/internal/setup"
)

// RulesConfig is all that's needed to classify broadcasts offline
type RulesConfig struct {
	LocalTimezone string `env:"LOCAL_TIMEZONE" default:"America/Chicago"`
	RulesFile     string `env:"RULES_FILE"`
}

type Config struct {
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

func (c *Config) options() setup.Options {
	return setup.Options{
		BoxcastClientID:     c.BoxcastClientID,
		BoxcastClientSecret: c.BoxcastClientSecret,
		BoxcastAPIURL:       c.BoxcastAPIURL,
		BoxcastTokenURL:     c.BoxcastAuthURL,
		DiscordWebhookURL:   c.DiscordWebhookURL,
		DownloadDir:         c.DownloadDir,
		StateBackend:        c.StateBackend,
		StateFile:           c.StateFile,
		StateLockTimeout:    c.StateLockTimeout,
		DatabaseHost:        c.DatabaseHost,
		DatabasePort:        c.DatabasePort,
		DatabaseName:        c.DatabaseName,
		DatabaseUser:        c.DatabaseUser,
		DatabasePassword:    c.DatabasePassword,
		DatabaseSslMode:     c.DatabaseSslMode,
		RmqHost:             c.RmqHost,
		RmqPort:             c.RmqPort,
		RmqVhost:            c.RmqVhost,
		RmqUser:             c.RmqUser,
		RmqPassword:         c.RmqPassword,
		LocalTimezone:       c.LocalTimezone,
		StartDate:           c.StartDate,
		PollInterval:        c.DownloadPollInterval,
		DownloadTimeout:     c.DownloadTimeout,
		RulesFile:           c.RulesFile,
		ReportWeekday:       c.ReportWeekday,
		DryRun:              c.DryRun,
	}
}

func main() {
	app, ctx := entry.NewApplication("boxcast-autodownload")
	defer app.Stop()

	// Parse config from environment variables
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		app.Fail("Failed to load .env file", err)
	}

	if err := newRootCmd(app.Log()).ExecuteContext(ctx); err != nil {
		app.Fail("Command failed", err)
	}
}

func newRootCmd(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "autodownload",
		Short:         "Archive BoxCast service recordings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(logger))
	root.AddCommand(newGapsCmd(logger))
	root.AddCommand(newReportCmd(logger))
	root.AddCommand(newClassifyCmd())
	root.AddCommand(newStatusCmd(logger))
	return root
}

func loadStack(ctx context.Context, logger *slog.Logger) (*setup.Stack, error) {
	config := Config{}
	if err := env.Set(&config); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return setup.Build(ctx, logger, config.options())
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Perform a single archiver run: live alerts, schedule check, weekly report and downloads",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stack, err := loadStack(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			summary, err := stack.Runner.Run(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), notify.FormatRunSummary(summary))
			return nil
		},
	}
}

func newGapsCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "gaps",
		Short: "List expected services that are not yet scheduled in the coming week",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stack, err := loadStack(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			report, err := stack.Runner.Gaps(cmd.Context(), time.Now(), nil)
			if err != nil {
				return err
			}
			if len(report.Gaps) == 0 {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "All expected services are scheduled in the next %d days.\n", report.WindowDays)
				return nil
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), notify.FormatScheduleGaps(report))
			return nil
		},
	}
}

func newReportCmd(logger *slog.Logger) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize scheduled and recorded services for the seven days before a date",
		RunE: func(cmd *cobra.Command, _ []string) error {
			stack, err := loadStack(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			now := time.Now()
			if date != "" {
				now, err = time.ParseInLocation("2006-01-02", date, stack.Location)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
			}
			weekly, err := stack.Runner.Report(cmd.Context(), now, nil)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), notify.FormatWeeklyReport(weekly))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "end of the reporting window, YYYY-MM-DD (default today)")
	return cmd
}

func newClassifyCmd() *cobra.Command {
	var title, start, end string
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Show how a broadcast would be categorized and where it would be filed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config := RulesConfig{}
			if err := env.Set(&config); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return classifyBroadcast(cmd.OutOrStdout(), config, title, start, end)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "broadcast title")
	cmd.Flags().StringVar(&start, "start", "", "broadcast start time, RFC 3339")
	cmd.Flags().StringVar(&end, "end", "", "broadcast end time, RFC 3339 (optional)")
	_ = cmd.MarkFlagRequired("start")
	return cmd
}

func classifyBroadcast(w io.Writer, config RulesConfig, title, start, end string) error {
	loc, err := time.LoadLocation(config.LocalTimezone)
	if err != nil {
		return fmt.Errorf("invalid LOCAL_TIMEZONE: %w", err)
	}
	rs, err := rules.Load(config.RulesFile)
	if err != nil {
		return err
	}
	startsAt, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return fmt.Errorf("invalid --start: %w", err)
	}
	b := archiver.Broadcast{Title: title, ScheduledStart: startsAt, ActiveStart: startsAt}
	if end != "" {
		stopsAt, err := time.Parse(time.RFC3339, end)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
		b.ActiveEnd = &stopsAt
	}

	category := classify.NewClassifier(rs.Holidays, loc).ClassifyBroadcast(&b)
	_, _ = fmt.Fprintf(w, "category: %s\n", category)
	if category.Kind == archiver.CategoryYouth {
		_, _ = fmt.Fprintln(w, "destination: (not downloaded)")
		return nil
	}
	localStart := startsAt.In(loc)
	dest, err := paths.Build(category, title, localStart, localStart.Year(), paths.NewSet())
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "destination: %s\n", dest)
	return nil
}

func newStatusCmd(logger *slog.Logger) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show persisted archiver state, or the status reported by a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if serverURL != "" {
				status, err := archiver.FetchStatus(cmd.Context(), serverURL)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(status)
			}

			stack, err := loadStack(cmd.Context(), logger)
			if err != nil {
				return err
			}
			defer stack.Close()
			doc, err := stack.Store.Load(cmd.Context())
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(doc)
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "URL of a running archiver server to query instead of local state")
	return cmd
}
