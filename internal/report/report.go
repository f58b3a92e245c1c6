// Package report logs ticket store statistics on a cron schedule.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/h1v3-io/ticketd/internal/ticket"
)

// StatsSource is the part of ticket.Store the reporter reads.
type StatsSource interface {
	Stats() (ticket.Stats, error)
}

// Reporter writes one "ticket stats" record each time its schedule fires.
type Reporter struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	source  StatsSource
	logger  *slog.Logger
	runs    int
	lastErr error
}

// New creates a reporter with no schedule.
func New(source StatsSource, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		cron:   cron.New(),
		source: source,
		logger: logger,
	}
}

// Schedule sets the cron spec (5 fields or a descriptor like @every 5m),
// replacing any previous one.
func (r *Reporter) Schedule(spec string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, err := r.cron.AddFunc(spec, func() { _ = r.ReportNow() })
	if err != nil {
		return fmt.Errorf("report: invalid schedule %q: %w", spec, err)
	}
	if r.entry != 0 {
		r.cron.Remove(r.entry)
	}
	r.entry = id
	r.logger.Info("stats report scheduled", "schedule", spec)
	return nil
}

// Start runs the schedule until ctx is cancelled.
func (r *Reporter) Start(ctx context.Context) error {
	r.cron.Start()
	r.logger.Debug("reporter started")

	<-ctx.Done()
	<-r.cron.Stop().Done()
	r.logger.Debug("reporter stopped")
	return ctx.Err()
}

// ReportNow reads the store once and logs the result.
func (r *Reporter) ReportNow() error {
	st, err := r.source.Stats()

	r.mu.Lock()
	r.runs++
	r.lastErr = err
	r.mu.Unlock()

	if err != nil {
		r.logger.Error("ticket stats failed", "error", err)
		return err
	}
	r.logger.Info("ticket stats",
		"tickets", st.Tickets,
		"next_id", uint64(st.NextID),
		"todo", st.ByStatus[ticket.StatusToDo],
		"in_progress", st.ByStatus[ticket.StatusInProgress],
		"done", st.ByStatus[ticket.StatusDone],
	)
	return nil
}

// Runs returns how many reports have been attempted.
func (r *Reporter) Runs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs
}

// LastError returns the error from the most recent report, if any.
func (r *Reporter) LastError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}
