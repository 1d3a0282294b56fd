package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/carbondale-church/archiver"
	"github.com/carbondale-church/archiver/internal/boxcast"
	"github.com/carbondale-church/archiver/internal/classify"
	"github.com/carbondale-church/archiver/internal/livestate"
	"github.com/carbondale-church/archiver/internal/metrics"
	"github.com/carbondale-church/archiver/internal/notify"
	"github.com/carbondale-church/archiver/internal/paths"
	"github.com/carbondale-church/archiver/internal/report"
	"github.com/carbondale-church/archiver/internal/rules"
	"github.com/carbondale-church/archiver/internal/schedule"
)

const DefaultLookaheadDays = 7

// API is the subset of the BoxCast client used during a run
type API interface {
	ListBroadcasts(ctx context.Context, q boxcast.Query) ([]archiver.Broadcast, []archiver.Skipped, error)
	GetBroadcast(ctx context.Context, id string) (*archiver.Broadcast, error)
	RequestDownload(ctx context.Context, recordingId string) error
	WaitForDownload(ctx context.Context, recordingId string, every time.Duration) (string, error)
	Download(ctx context.Context, downloadURL, dest string) (int64, error)
}

type Config struct {
	DownloadDir string
	Location    *time.Location
	// StartDate excludes broadcasts that started before it from downloading; zero
	// means no limit
	StartDate       time.Time
	PollInterval    time.Duration
	DownloadTimeout time.Duration
	ReportWeekday   time.Weekday
	LookaheadDays   int
	// DryRun classifies and notifies as usual but downloads nothing
	DryRun bool
}

// Runner performs archiver runs. Runs are serialized: a run requested while another
// is in progress waits for it to finish.
type Runner struct {
	mu       sync.Mutex
	api      API
	store    livestate.Store
	notifier notify.Notifier
	logger   *slog.Logger
	cfg      Config

	rulesMu    sync.RWMutex
	classifier *classify.Classifier
	slots      []archiver.ExpectedSlot

	statusMu sync.RWMutex
	lastRun  *archiver.RunSummary
	live     archiver.LiveState
}

func New(api API, store livestate.Store, notifier notify.Notifier, logger *slog.Logger, cfg Config, rs *rules.Rules) *Runner {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.LookaheadDays <= 0 {
		cfg.LookaheadDays = DefaultLookaheadDays
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	r := &Runner{
		api:      api,
		store:    store,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		live:     archiver.LiveState{},
	}
	r.SetRules(rs)
	return r
}

// SetRules replaces the holiday names and expected slots used by subsequent runs
func (r *Runner) SetRules(rs *rules.Rules) {
	if rs == nil {
		rs = rules.Default()
	}
	classifier := classify.NewClassifier(rs.Holidays, r.cfg.Location)
	r.rulesMu.Lock()
	defer r.rulesMu.Unlock()
	r.classifier = classifier
	r.slots = rs.ExpectedSlots
}

func (r *Runner) currentRules() (*classify.Classifier, []archiver.ExpectedSlot) {
	r.rulesMu.RLock()
	defer r.rulesMu.RUnlock()
	return r.classifier, r.slots
}

// Status reports the outcome of the most recent run
func (r *Runner) Status() archiver.Status {
	r.statusMu.RLock()
	defer r.statusMu.RUnlock()
	return archiver.Status{
		LastRun:   r.lastRun,
		LiveState: r.live.Clone(),
	}
}

// Run performs a single archiver pass as of now: live-stream alerts, the daily
// lookahead check, the weekly report, and downloading any new recordings. State is
// persisted only once every notification for the run has been attempted.
func (r *Runner) Run(ctx context.Context, now time.Time) (*archiver.RunSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	began := time.Now()
	summary := &archiver.RunSummary{
		RunId:     uuid.New(),
		StartedAt: now,
		Downloads: []archiver.Download{},
		Skipped:   []archiver.Skipped{},
		Notes:     []string{},
	}
	logger := r.logger.With("runId", summary.RunId)
	logger.Info("Starting run", "downloadDir", r.cfg.DownloadDir, "dryRun", r.cfg.DryRun)

	release, err := r.store.Lock(ctx)
	if err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to acquire state lock: %w", err)
	}
	defer release()

	doc, err := r.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, livestate.ErrCorruptState) {
			metrics.RunsTotal.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("failed to load state: %w", err)
		}
		logger.Warn("Persisted state is unreadable; starting from empty state", "error", err)
		summary.Notes = append(summary.Notes, "Persisted state was unreadable; starting from empty state.")
	}

	classifier, slots := r.currentRules()
	local := now.In(r.cfg.Location)
	today := local.Format("2006-01-02")

	r.monitorLive(ctx, logger, doc, summary)

	if doc.LastLookahead != today {
		gaps, err := r.Gaps(ctx, now, slots)
		if err != nil {
			logger.Error("Failed to check upcoming schedule", "error", err)
			summary.Notes = append(summary.Notes, fmt.Sprintf("Schedule check failed: %v", err))
		} else {
			metrics.ScheduleGaps.Set(float64(len(gaps.Gaps)))
			if len(gaps.Gaps) == 0 {
				logger.Info("All expected services are scheduled", "windowDays", gaps.WindowDays)
			}
			r.observeNotification(logger, "schedule-gaps", r.notifier.ScheduleGaps(ctx, gaps))
			doc.LastLookahead = today
		}
	}

	if local.Weekday() == r.cfg.ReportWeekday && doc.LastReport != today {
		weekly, err := r.Report(ctx, now, classifier)
		if err != nil {
			logger.Error("Failed to build weekly report", "error", err)
			summary.Notes = append(summary.Notes, fmt.Sprintf("Weekly report failed: %v", err))
		} else {
			r.observeNotification(logger, "weekly-report", r.notifier.WeeklyReport(ctx, weekly))
			doc.LastReport = today
		}
	}

	r.downloadRecordings(ctx, logger, classifier, doc, summary)

	finishedAt := now.Add(time.Since(began))
	summary.FinishedAt = &finishedAt
	logger.Info("Finished run", "numDownloads", len(summary.Downloads), "numSkipped", len(summary.Skipped))
	r.observeNotification(logger, "run-summary", r.notifier.RunSummary(ctx, summary))

	r.statusMu.Lock()
	r.lastRun = summary
	r.live = doc.Live.Clone()
	r.statusMu.Unlock()
	metrics.LiveBroadcasts.Set(float64(len(doc.Live)))
	metrics.LastRunTimestamp.Set(float64(finishedAt.Unix()))

	if err := r.store.Save(ctx, doc); err != nil {
		metrics.RunsTotal.WithLabelValues("error").Inc()
		return summary, fmt.Errorf("failed to save state: %w", err)
	}
	metrics.RunsTotal.WithLabelValues("ok").Inc()
	return summary, nil
}

// monitorLive sends an alert for each broadcast that went live or stopped being live
// since the previous run, then records the new live state in doc
func (r *Runner) monitorLive(ctx context.Context, logger *slog.Logger, doc *livestate.Document, summary *archiver.RunSummary) {
	live, _, err := r.api.ListBroadcasts(ctx, boxcast.Query{IsLive: true})
	if err != nil {
		logger.Error("Failed to list live broadcasts", "error", err)
		summary.Notes = append(summary.Notes, fmt.Sprintf("Live stream check failed: %v", err))
		return
	}

	liveIds := make([]string, 0, len(live))
	byId := make(map[string]*archiver.Broadcast, len(live))
	for i := range live {
		liveIds = append(liveIds, live[i].Id)
		byId[live[i].Id] = &live[i]
	}
	t := livestate.Diff(livestate.Observe(liveIds, doc.Live), doc.Live)

	for _, id := range t.BecameLive {
		b := byId[id]
		localStart := b.ActiveStart.In(r.cfg.Location)
		logger.Info("Broadcast went live", "broadcastId", id, "title", b.Title)
		r.observeNotification(logger, "live-started", r.notifier.LiveChanged(ctx, &archiver.LiveChange{
			BroadcastId: id,
			Title:       b.Title,
			IsLive:      true,
			LocalStart:  &localStart,
		}))
	}

	for _, id := range t.BecameNotLive {
		change := &archiver.LiveChange{BroadcastId: id}
		detail, err := r.api.GetBroadcast(ctx, id)
		if err != nil {
			logger.Error("Failed to fetch details for ended broadcast", "broadcastId", id, "error", err)
		} else {
			change.Title = detail.Title
			if detail.ActiveEnd != nil {
				localEnd := detail.ActiveEnd.In(r.cfg.Location)
				change.LocalEnd = &localEnd
			}
		}
		logger.Info("Broadcast is no longer live", "broadcastId", id, "title", change.Title)
		r.observeNotification(logger, "live-ended", r.notifier.LiveChanged(ctx, change))
	}

	// Entries for broadcasts that are no longer live carry no information
	for id, isLive := range t.Next {
		if !isLive {
			delete(t.Next, id)
		}
	}
	doc.Live = t.Next
}

// Gaps checks the expected slots over the lookahead window starting at local midnight
// of now
func (r *Runner) Gaps(ctx context.Context, now time.Time, slots []archiver.ExpectedSlot) (*archiver.GapReport, error) {
	if slots == nil {
		_, slots = r.currentRules()
	}
	windowStart := midnight(now.In(r.cfg.Location))
	windowEnd := windowStart.AddDate(0, 0, r.cfg.LookaheadDays)
	broadcasts, _, err := r.api.ListBroadcasts(ctx, boxcast.Query{
		StartsAfter:  windowStart.Add(-schedule.AssumedDuration),
		StartsBefore: windowEnd,
	})
	if err != nil {
		return nil, err
	}
	return &archiver.GapReport{
		WindowStart: windowStart,
		WindowDays:  r.cfg.LookaheadDays,
		Gaps:        schedule.FindGaps(slots, broadcasts, windowStart, r.cfg.LookaheadDays),
	}, nil
}

// Report builds the weekly report for the seven days before local midnight of now
func (r *Runner) Report(ctx context.Context, now time.Time, classifier *classify.Classifier) (*archiver.WeeklyReport, error) {
	if classifier == nil {
		classifier, _ = r.currentRules()
	}
	windowEnd := midnight(now.In(r.cfg.Location))
	windowStart := windowEnd.AddDate(0, 0, -report.DefaultWindowDays)
	broadcasts, _, err := r.api.ListBroadcasts(ctx, boxcast.Query{
		StartsAfter:  windowStart,
		StartsBefore: windowEnd,
	})
	if err != nil {
		return nil, err
	}
	weekly := report.Weekly(classifier, broadcasts, windowEnd, report.DefaultWindowDays)
	return &weekly, nil
}

// downloadRecordings files every new recording that is ready, recording each one in
// doc so that later runs skip it
func (r *Runner) downloadRecordings(ctx context.Context, logger *slog.Logger, classifier *classify.Classifier, doc *livestate.Document, summary *archiver.RunSummary) {
	broadcasts, malformed, err := r.api.ListBroadcasts(ctx, boxcast.Query{
		HasRecording: true,
		StartsAfter:  r.cfg.StartDate,
	})
	if err != nil {
		logger.Error("Failed to list recorded broadcasts", "error", err)
		summary.Notes = append(summary.Notes, fmt.Sprintf("Listing recorded broadcasts failed: %v", err))
		return
	}
	for _, s := range malformed {
		metrics.ObserveSkip("malformed")
		summary.Skipped = append(summary.Skipped, s)
	}
	logger.Info("Found recorded broadcasts", "numBroadcasts", len(broadcasts))

	existing := r.existingPaths(logger, doc)
	owners := make(map[string]string, len(doc.Downloads))
	for id, path := range doc.Downloads {
		owners[path] = id
	}
	skip := func(b *archiver.Broadcast, reason string, err error) {
		logger.Warn("Skipping broadcast", "broadcastId", b.Id, "title", b.Title, "reason", reason, "error", err)
		metrics.ObserveSkip(reason)
		summary.Skipped = append(summary.Skipped, archiver.Skipped{
			BroadcastId: b.Id,
			Title:       b.Title,
			Reason:      err.Error(),
		})
	}

	for i := range broadcasts {
		b := &broadcasts[i]
		if !r.cfg.StartDate.IsZero() && b.ActiveStart.Before(r.cfg.StartDate) {
			continue
		}
		if _, ok := doc.Downloads[b.Id]; ok {
			continue
		}

		category := classifier.ClassifyBroadcast(b)
		if category.Kind == archiver.CategoryYouth {
			logger.Info("Skipping youth service", "broadcastId", b.Id, "title", b.Title)
			continue
		}

		localStart := b.ScheduledStart.In(r.cfg.Location)
		dest, err := paths.Build(category, b.Title, localStart, localStart.Year(), existing)
		if err != nil {
			skip(b, "unsupported-category", err)
			continue
		}
		outfile := dest.Join(r.cfg.DownloadDir)
		logger.Info("Classified broadcast", "broadcastId", b.Id, "title", b.Title, "category", category.String(), "destination", dest.String())

		if owner, ok := owners[dest.String()]; ok && owner != b.Id {
			skip(b, "destination-in-use", fmt.Errorf("destination %s already used by %s", dest.String(), owner))
			continue
		}
		if _, err := os.Stat(outfile); err == nil {
			logger.Info("Recording already exists on disk", "broadcastId", b.Id, "path", outfile)
			doc.Downloads[b.Id] = dest.String()
			owners[dest.String()] = b.Id
			existing.Add(dest)
			continue
		}

		if category.Kind == archiver.CategoryUncategorized {
			r.observeNotification(logger, "uncategorized", r.notifier.Uncategorized(ctx, &archiver.UncategorizedAlert{
				Broadcast:   *b,
				LocalStart:  b.ActiveStart.In(r.cfg.Location),
				Destination: dest.String(),
			}))
		}

		if r.cfg.DryRun {
			logger.Info("Dry run; not downloading", "broadcastId", b.Id, "path", outfile)
			continue
		}

		n, err := r.fetch(ctx, logger, b, outfile)
		if err != nil {
			reason := "download-failed"
			if errors.Is(err, boxcast.ErrNoRecording) {
				reason = "no-recording"
			}
			skip(b, reason, err)
			if ctx.Err() != nil {
				summary.Notes = append(summary.Notes, "Run was interrupted before all recordings were downloaded.")
				return
			}
			continue
		}

		logger.Info("Download complete", "broadcastId", b.Id, "path", outfile, "numBytes", n)
		metrics.DownloadsTotal.WithLabelValues(string(category.Kind)).Inc()
		metrics.DownloadedBytesTotal.Add(float64(n))
		doc.Downloads[b.Id] = dest.String()
		owners[dest.String()] = b.Id
		existing.Add(dest)
		summary.Downloads = append(summary.Downloads, archiver.Download{
			BroadcastId: b.Id,
			Title:       b.Title,
			Category:    category,
			Path:        dest.String(),
		})
	}
}

// fetch requests an export of the broadcast's recording, waits for it to become
// ready, and downloads it to outfile
func (r *Runner) fetch(ctx context.Context, logger *slog.Logger, b *archiver.Broadcast, outfile string) (int64, error) {
	recordingId := b.RecordingId
	if recordingId == "" {
		detail, err := r.api.GetBroadcast(ctx, b.Id)
		if err != nil {
			return 0, fmt.Errorf("failed to get broadcast details: %w", err)
		}
		recordingId = detail.RecordingId
	}
	if recordingId == "" {
		return 0, boxcast.ErrNoRecording
	}

	logger.Info("Requesting export", "broadcastId", b.Id, "recordingId", recordingId)
	if err := r.api.RequestDownload(ctx, recordingId); err != nil {
		return 0, fmt.Errorf("export request failed: %w", err)
	}

	waitCtx := ctx
	if r.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.cfg.DownloadTimeout)
		defer cancel()
	}
	downloadURL, err := r.api.WaitForDownload(waitCtx, recordingId, r.cfg.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("export did not become ready: %w", err)
	}
	return r.api.Download(ctx, downloadURL, outfile)
}

// existingPaths collects the destinations already taken, both by recordings we've
// downloaded and by Christmas At Carbondale files already on disk, so that new
// recordings get a free name
func (r *Runner) existingPaths(logger *slog.Logger, doc *livestate.Document) paths.Set {
	existing := paths.NewSet()
	for _, rel := range doc.Downloads {
		existing.Add(destinationFromPath(rel))
	}

	dir := filepath.Join(r.cfg.DownloadDir, paths.FolderChristmas)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to scan existing recordings", "dir", dir, "error", err)
		}
		return existing
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != archiver.RecordingExtension {
			continue
		}
		existing.Add(archiver.DestinationPath{
			Folder:   paths.FolderChristmas,
			BaseName: strings.TrimSuffix(entry.Name(), archiver.RecordingExtension),
		})
	}
	return existing
}

func destinationFromPath(rel string) archiver.DestinationPath {
	return archiver.DestinationPath{
		Folder:   filepath.Dir(rel),
		BaseName: strings.TrimSuffix(filepath.Base(rel), archiver.RecordingExtension),
	}
}

func (r *Runner) observeNotification(logger *slog.Logger, kind string, err error) {
	metrics.ObserveNotification(kind, err)
	if err != nil {
		logger.Error("Failed to send notification", "kind", kind, "error", err)
	}
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
