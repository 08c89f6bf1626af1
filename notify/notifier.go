// Package notify runs the poll-match-notify loop: each cycle lists upcoming streams,
// keeps the ones about to start, matches them to tracked creators, and sends every
// subscriber one photo notification per stream.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/DanArmor/melatonin-bot/db"
	"github.com/DanArmor/melatonin-bot/holodex"
	"github.com/DanArmor/melatonin-bot/telemetry"
)

// Lister fetches stream candidates.
type Lister interface {
	Videos(ctx context.Context, q holodex.Query) ([]holodex.Video, error)
}

// Store is the persistence the loop needs.
type Store interface {
	ListCreators(ctx context.Context) ([]db.Creator, error)
	Subscribers(ctx context.Context, creatorID int64) ([]db.User, error)
	LedgerEntry(ctx context.Context, streamID string) (db.LedgerEntry, bool, error)
	RecordNotified(ctx context.Context, e db.LedgerEntry) error
	PruneLedger(ctx context.Context, now time.Time) (int64, error)
}

// Sender delivers one photo message with a MarkdownV2 caption.
type Sender interface {
	SendPhoto(ctx context.Context, chatID int64, photoURL, caption string) error
}

// Alerter reports failures that need an operator.
type Alerter interface {
	Fire(ctx context.Context, text string) error
}

// Options tunes the loop. Zero values fall back to the production defaults.
type Options struct {
	Interval        time.Duration
	LeadTime        time.Duration
	Query           holodex.Query
	UTCOffset       time.Duration
	OffsetLabel     string
	SendConcurrency int
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = time.Minute
	}
	if o.LeadTime <= 0 {
		o.LeadTime = 22 * time.Minute
	}
	if o.SendConcurrency <= 0 {
		o.SendConcurrency = 1
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// CycleReport summarizes one cycle; the last one is exposed on the status endpoint.
type CycleReport struct {
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
	Fetched         int           `json:"fetched"`
	InWindow        int           `json:"in_window"`
	Matched         int           `json:"matched"`
	AlreadyNotified int           `json:"already_notified"`
	NoSubscribers   int           `json:"no_subscribers"`
	Sent            int           `json:"sent"`
	Failed          int           `json:"failed"`
	Pruned          int64         `json:"pruned"`
	Error           string        `json:"error,omitempty"`
}

type Notifier struct {
	lister  Lister
	store   Store
	sender  Sender
	alerter Alerter
	opts    Options

	mu      sync.Mutex // serializes cycles
	lastMu  sync.RWMutex
	last    CycleReport
	hasLast bool
}

// New wires a notifier. alerter may be nil.
func New(lister Lister, store Store, sender Sender, alerter Alerter, opts Options) *Notifier {
	telemetry.Init()
	return &Notifier{lister: lister, store: store, sender: sender, alerter: alerter, opts: opts.withDefaults()}
}

// Start runs a cycle immediately and then on every tick until ctx is done. Ticks that
// arrive while a cycle is still running are dropped, so cycles never overlap.
func (n *Notifier) Start(ctx context.Context) {
	slog.Info("notifier starting",
		slog.String("component", "notify"),
		slog.Duration("interval", n.opts.Interval),
		slog.Duration("lead_time", n.opts.LeadTime))

	n.runLogged(ctx)

	ticker := time.NewTicker(n.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("notifier stopped", slog.String("component", "notify"))
			return
		case <-ticker.C:
			n.runLogged(ctx)
		}
	}
}

func (n *Notifier) runLogged(ctx context.Context) {
	if _, err := n.RunCycle(ctx); err != nil && ctx.Err() == nil {
		slog.Warn("poll cycle failed", slog.String("component", "notify"), slog.Any("err", err))
	}
}

// LastCycle returns the most recent cycle report, if any cycle has finished.
func (n *Notifier) LastCycle() (CycleReport, bool) {
	n.lastMu.RLock()
	defer n.lastMu.RUnlock()
	return n.last, n.hasLast
}

// RunCycle performs one poll-match-notify pass followed by ledger cleanup.
// A failed stream listing aborts the cycle and fires an operator alert.
func (n *Notifier) RunCycle(ctx context.Context) (rep CycleReport, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "notify", "poll_cycle")
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "notify"))

	now := n.opts.Now()
	rep.StartedAt = now
	if telemetry.PollCycles != nil {
		telemetry.PollCycles.Inc()
	}
	defer func() {
		rep.Duration = n.opts.Now().Sub(now)
		if err != nil {
			rep.Error = err.Error()
			telemetry.RecordError(span, err)
		} else {
			telemetry.SetSpanSuccess(span)
		}
		if telemetry.CycleDuration != nil {
			telemetry.CycleDuration.Observe(rep.Duration.Seconds())
		}
		telemetry.MarkCycle(n.opts.Now(), rep.InWindow)
		n.lastMu.Lock()
		n.last, n.hasLast = rep, true
		n.lastMu.Unlock()
	}()

	var videos []holodex.Video
	var fetchObs prometheus.Observer
	if telemetry.PollFetchDuration != nil {
		fetchObs = telemetry.PollFetchDuration
	}
	telemetry.TimeFunc(fetchObs, func() {
		videos, err = n.lister.Videos(ctx, n.opts.Query)
	})
	if err != nil {
		if telemetry.PollFetchFailures != nil {
			telemetry.PollFetchFailures.Inc()
		}
		log.Error("stream listing failed", slog.Any("err", err))
		n.alert(ctx, fmt.Sprintf("stream listing failed: %v", err))
		return rep, fmt.Errorf("fetch videos: %w", err)
	}
	rep.Fetched = len(videos)

	candidates := Gate(videos, now, n.opts.LeadTime)
	rep.InWindow = len(candidates)

	creators, err := n.store.ListCreators(ctx)
	if err != nil {
		return rep, err
	}
	byChannel := make(map[string]db.Creator, len(creators))
	for _, c := range creators {
		if c.ExternalChannelID != "" {
			byChannel[c.ExternalChannelID] = c
		}
	}

	for _, v := range candidates {
		c, ok := byChannel[v.Channel.ID]
		if !ok {
			continue
		}
		rep.Matched++

		_, found, err := n.store.LedgerEntry(ctx, v.ID)
		if err != nil {
			// leave it for the next cycle; the stream is still in the window
			log.Warn("ledger lookup failed", slog.String("stream_id", v.ID), slog.Any("err", err))
			continue
		}
		if found {
			rep.AlreadyNotified++
			continue
		}

		sent, failed, err := n.fanOut(ctx, c, v, now)
		if err != nil {
			log.Warn("fan-out failed", slog.String("stream_id", v.ID), slog.String("creator", c.DisplayName()), slog.Any("err", err))
			continue
		}
		if sent+failed == 0 {
			rep.NoSubscribers++
			continue
		}
		rep.Sent += sent
		rep.Failed += failed

		entry := db.LedgerEntry{StreamID: v.ID, CreatorID: c.ID, ScheduledStart: v.StartScheduled}
		if err := n.store.RecordNotified(ctx, entry); err != nil {
			log.Error("ledger write failed; stream may be notified again", slog.String("stream_id", v.ID), slog.Any("err", err))
		}
	}

	pruned, err := n.store.PruneLedger(ctx, n.opts.Now())
	if err != nil {
		log.Warn("ledger cleanup failed", slog.Any("err", err))
	} else {
		rep.Pruned = pruned
		if telemetry.LedgerPruned != nil {
			telemetry.LedgerPruned.Add(float64(pruned))
		}
	}

	log.Info("poll cycle complete",
		slog.Int("fetched", rep.Fetched),
		slog.Int("in_window", rep.InWindow),
		slog.Int("matched", rep.Matched),
		slog.Int("already_notified", rep.AlreadyNotified),
		slog.Int("sent", rep.Sent),
		slog.Int("failed", rep.Failed),
		slog.Int64("pruned", rep.Pruned))
	return rep, nil
}

// fanOut sends the stream notification to every subscriber of c. A zero total means
// there was nobody to notify and no ledger entry should be written.
func (n *Notifier) fanOut(ctx context.Context, c db.Creator, v holodex.Video, now time.Time) (sent, failed int, err error) {
	ctx, span := telemetry.StartSpan(ctx, "notify", "fan_out",
		telemetry.StreamIDAttr(v.ID), telemetry.CreatorAttr(c.DisplayName()), telemetry.ChannelIDAttr(v.Channel.ID))
	defer span.End()

	users, err := n.store.Subscribers(ctx, c.ID)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, 0, err
	}
	span.SetAttributes(telemetry.RecipientsAttr(len(users)))
	if len(users) == 0 {
		return 0, 0, nil
	}

	caption := Caption{Creator: c, Video: v, Now: now, UTCOffset: n.opts.UTCOffset, OffsetLabel: n.opts.OffsetLabel}.Text()
	photo := ThumbnailURL(v.ID)
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "notify"), slog.String("stream_id", v.ID))

	var okCount, failCount atomic.Int64
	var g errgroup.Group
	g.SetLimit(n.opts.SendConcurrency)
	for _, u := range users {
		u := u
		g.Go(func() error {
			if err := n.sender.SendPhoto(ctx, u.ChatID, photo, caption); err != nil {
				class := ClassifySendError(err)
				telemetry.RecordNotificationFailure(class.String())
				log.Warn("notification not delivered", slog.Int64("user_id", u.ExternalUserID), slog.String("class", class.String()), slog.Any("err", err))
				failCount.Add(1)
				return nil
			}
			if telemetry.NotificationsSent != nil {
				telemetry.NotificationsSent.Inc()
			}
			okCount.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(okCount.Load()), int(failCount.Load()), nil
}

func (n *Notifier) alert(ctx context.Context, text string) {
	if n.alerter == nil {
		return
	}
	if err := n.alerter.Fire(ctx, text); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("alert delivery failed", slog.String("component", "notify"), slog.Any("err", err))
	}
}
