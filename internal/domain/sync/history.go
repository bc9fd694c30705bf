package sync

import (
	"fmt"
	stdsync "sync"
	"time"

	"github.com/phoenikes/calldoc-sync/internal/domain/examination"
)

// RunHistory tracks which examinations this process knows about, keyed
// by the logical identity (date, patient, procedure kind). The target
// store carries no source appointment key, so this is the only
// "already synchronized" signal; it is seeded from the store's rows at
// the start of each run and does not survive restarts.
type RunHistory struct {
	mu      stdsync.Mutex
	entries map[string]historyEntry
}

type historyEntry struct {
	ExamID int64
	Last   examination.Record
}

func NewRunHistory() *RunHistory {
	return &RunHistory{entries: make(map[string]historyEntry)}
}

func historyKey(date time.Time, patientID, kindID int64) string {
	return fmt.Sprintf("%s|%d|%d", date.Format("2006-01-02"), patientID, kindID)
}

// Seed registers store rows the process has not tracked yet. Entries
// already tracked keep their last computed field set.
func (h *RunHistory) Seed(records []examination.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range records {
		key := historyKey(r.Date, r.PatientID, r.KindID)
		if _, ok := h.entries[key]; !ok {
			h.entries[key] = historyEntry{ExamID: r.ID, Last: r}
		}
	}
}

func (h *RunHistory) Get(date time.Time, patientID, kindID int64) (examID int64, last examination.Record, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[historyKey(date, patientID, kindID)]
	return e.ExamID, e.Last, ok
}

func (h *RunHistory) Put(rec examination.Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[historyKey(rec.Date, rec.PatientID, rec.KindID)] = historyEntry{ExamID: rec.ID, Last: rec}
}

func (h *RunHistory) Remove(date time.Time, patientID, kindID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.entries, historyKey(date, patientID, kindID))
}

// TrackedForDate lists the entries recorded for one date, optionally
// restricted to a procedure kind. Used to find delete candidates.
func (h *RunHistory) TrackedForDate(date time.Time, kindID *int64) []examination.Record {
	h.mu.Lock()
	defer h.mu.Unlock()

	var out []examination.Record
	for _, e := range h.entries {
		if !e.Last.Date.Equal(date) {
			continue
		}
		if kindID != nil && e.Last.KindID != *kindID {
			continue
		}
		out = append(out, e.Last)
	}
	return out
}
