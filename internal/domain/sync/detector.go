package sync

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	stdsync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/phoenikes/calldoc-sync/internal/domain/appointment"
)

// Fingerprint digests the ordered (appointmentId, status,
// externalPatientId) tuples of a day's appointments. Two equal
// fingerprints mean nothing sync-relevant changed.
func Fingerprint(records []appointment.Record) string {
	tuples := make([]string, 0, len(records))
	for _, r := range records {
		ext := int64(0)
		if r.ExternalPatientID != nil {
			ext = *r.ExternalPatientID
		}
		tuples = append(tuples, fmt.Sprintf("%d|%s|%d", r.ID, r.Status, ext))
	}
	sort.Strings(tuples)

	h := sha256.New()
	for _, t := range tuples {
		h.Write([]byte(t))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Submitter is the coordinator surface the detector needs.
type Submitter interface {
	Submit(scope Scope) (View, error)
}

// DetectorStatus is a snapshot of the polling loop for the status
// endpoint.
type DetectorStatus struct {
	Enabled         bool       `json:"enabled"`
	IntervalMinutes int        `json:"intervalMinutes"`
	LastTick        *time.Time `json:"lastTick,omitempty"`
	LastChange      *time.Time `json:"lastChange,omitempty"`
	Ticks           int        `json:"ticks"`
	Triggered       int        `json:"triggered"`
	LastError       string     `json:"lastError,omitempty"`
}

// Detector polls the source for the current day and submits a whole-day
// sync when the fingerprint changes. Single goroutine; a slow or failed
// tick never blocks the next one beyond its own duration.
type Detector struct {
	source      appointment.Source
	coordinator Submitter
	interval    time.Duration
	kindID      int64
	logger      zerolog.Logger
	now         func() time.Time

	mu     stdsync.Mutex
	status DetectorStatus
	last   string
}

type DetectorConfig struct {
	Source      appointment.Source
	Coordinator Submitter
	Interval    time.Duration
	KindID      int64
	Logger      zerolog.Logger
	Now         func() time.Time
}

func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Detector{
		source:      cfg.Source,
		coordinator: cfg.Coordinator,
		interval:    cfg.Interval,
		kindID:      cfg.KindID,
		logger:      cfg.Logger,
		now:         cfg.Now,
		status: DetectorStatus{
			IntervalMinutes: int(cfg.Interval / time.Minute),
		},
	}
}

// Run blocks until ctx is done, ticking at the configured interval.
func (d *Detector) Run(ctx context.Context) {
	d.mu.Lock()
	d.status.Enabled = true
	d.mu.Unlock()

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	d.logger.Info().Dur("interval", d.interval).Msg("change detector started")
	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.status.Enabled = false
			d.mu.Unlock()
			d.logger.Info().Msg("change detector stopped")
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}

// Tick fetches today's appointments, compares fingerprints and submits
// a whole-day task on change. Exposed for tests and one-shot use.
func (d *Detector) Tick(ctx context.Context) {
	today := truncate(d.now())

	filter := appointment.Filter{}
	if d.kindID != 0 {
		k := d.kindID
		filter.KindID = &k
	}

	records, err := d.source.FetchDay(ctx, today, filter)

	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	d.status.LastTick = &now
	d.status.Ticks++

	if err != nil {
		d.status.LastError = err.Error()
		d.logger.Warn().Err(err).Msg("detector fetch failed")
		return
	}
	d.status.LastError = ""

	fp := Fingerprint(records)
	if fp == d.last {
		return
	}
	first := d.last == ""
	d.last = fp

	// The very first tick establishes the baseline without syncing.
	if first {
		return
	}

	scope := Scope{Kind: ScopeDay, Date: today, ProcedureKindID: d.kindID}
	view, err := d.coordinator.Submit(scope)
	if err != nil {
		var conflict *ConflictError
		if errors.As(err, &conflict) {
			d.logger.Debug().Str("task_id", conflict.TaskID).Msg("day sync already in flight")
			return
		}
		d.status.LastError = err.Error()
		d.logger.Warn().Err(err).Msg("detector submit failed")
		return
	}

	d.status.Triggered++
	d.status.LastChange = &now
	d.logger.Info().Str("task_id", view.TaskID).Msg("change detected, day sync submitted")
}

// Status returns a copy of the loop's current state.
func (d *Detector) Status() DetectorStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}
