package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/phoenikes/calldoc-sync/internal/domain/appointment"
	"github.com/phoenikes/calldoc-sync/internal/domain/examination"
	"github.com/phoenikes/calldoc-sync/internal/domain/patient"
)

// Engine computes and applies insert/update/skip/delete actions for one
// scope at a time. It is conservative: when in doubt it inserts rather
// than risks losing data, and it never deletes past or current-day
// records.
type Engine struct {
	source    appointment.Source
	patients  patient.Repository
	insurance patient.InsuranceIndex
	exams     examination.Repository
	mappings  examination.MappingLoader
	defaults  examination.Defaults
	history   *RunHistory

	deleteObsolete bool
	now            func() time.Time
	logger         zerolog.Logger
}

type EngineConfig struct {
	Source         appointment.Source
	Patients       patient.Repository
	Insurance      patient.InsuranceIndex
	Examinations   examination.Repository
	Mappings       examination.MappingLoader
	Defaults       examination.Defaults
	History        *RunHistory
	DeleteObsolete bool
	Now            func() time.Time
	Logger         zerolog.Logger
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.History == nil {
		cfg.History = NewRunHistory()
	}
	return &Engine{
		source:         cfg.Source,
		patients:       cfg.Patients,
		insurance:      cfg.Insurance,
		exams:          cfg.Examinations,
		mappings:       cfg.Mappings,
		defaults:       cfg.Defaults,
		history:        cfg.History,
		deleteObsolete: cfg.DeleteObsolete,
		now:            cfg.Now,
		logger:         cfg.Logger,
	}
}

// Reconcile runs one scope to completion. Per-appointment problems are
// recorded in the result and do not abort the run; an unreachable
// source or store does.
func (e *Engine) Reconcile(ctx context.Context, scope Scope) (*Result, error) {
	appts, err := e.fetchScope(ctx, scope)
	if err != nil {
		return nil, err
	}

	if scope.Kind == ScopePatient && len(appts) == 0 {
		return nil, ErrPatientNotScheduled
	}

	tables, err := e.mappings.LoadMappings(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	mapper := examination.NewMapper(tables, e.defaults, e.logger)
	resolver := patient.NewResolver(e.patients, e.insurance, e.logger)

	kindFilter := scope.kindFilter()
	existing, err := e.exams.ListByDate(ctx, scope.Date, kindFilter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}
	e.history.Seed(existing)

	result := &Result{}
	activePatients := make(map[int64]bool)

	for _, appt := range appts {
		if err := ctx.Err(); err != nil {
			return result, terminalCtxError(err)
		}

		res, err := resolver.Resolve(ctx, appt)
		if err != nil {
			if errors.Is(err, patient.ErrUnavailable) {
				return result, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
			}
			result.Errors = append(result.Errors, fmt.Sprintf("appointment %d: %v", appt.ID, err))
			e.logger.Warn().Err(err).Int64("appointment_id", appt.ID).Msg("patient resolution failed")
			continue
		}
		activePatients[res.PatientID] = true
		if res.Created {
			result.PatientsCreated++
		}

		computed := e.buildRecord(appt, res.PatientID, mapper)

		// Cancellation is checked between resolution and the write so
		// a canceled task stops before the next side effect.
		if err := ctx.Err(); err != nil {
			return result, terminalCtxError(err)
		}

		examID, last, tracked := e.history.Get(computed.Date, computed.PatientID, computed.KindID)
		switch {
		case !tracked:
			inserted, err := e.exams.Insert(ctx, &computed)
			if err != nil {
				return result, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
			}
			e.history.Put(*inserted)
			result.Inserted++
		case examination.FieldsDiffer(last, computed):
			computed.ID = examID
			if err := e.exams.Update(ctx, &computed); err != nil {
				return result, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
			}
			e.history.Put(computed)
			result.Updated++
		default:
			result.Skipped++
		}
	}

	if err := e.deletePass(ctx, scope, activePatients, result); err != nil {
		return result, err
	}

	if scope.Kind == ScopePatient {
		result.Action = singlePatientAction(result)
	}

	e.logger.Info().
		Str("scope", scope.Key()).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("deleted", result.Deleted).
		Int("skipped", result.Skipped).
		Int("errors", len(result.Errors)).
		Msg("reconciliation finished")

	return result, nil
}

func (e *Engine) fetchScope(ctx context.Context, scope Scope) ([]appointment.Record, error) {
	filter := appointment.Filter{
		KindID:         scope.kindFilter(),
		PractitionerID: scope.PractitionerID,
		LocationID:     scope.LocationID,
		StatusOverride: scope.StatusOverride,
	}

	appts, err := e.source.FetchDay(ctx, scope.Date, filter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
	}

	appts = appointment.ApplyStatusPolicy(appts, scope.Date, e.now(), scope.StatusOverride)

	if scope.Kind == ScopePatient {
		matched := appts[:0:0]
		for _, a := range appts {
			if a.ExternalPatientID != nil && *a.ExternalPatientID == scope.ExternalPatientID {
				matched = append(matched, a)
			}
		}
		appts = matched
	}
	return appts, nil
}

func (e *Engine) buildRecord(appt appointment.Record, patientID int64, mapper *examination.Mapper) examination.Record {
	billing := mapper.PractitionerBillingID(appt.PractitionerID)
	device := mapper.LocationDeviceID(appt.LocationID)

	rec := examination.Record{
		PatientID:             patientID,
		Date:                  appt.Date,
		Status:                examination.MapStatus(appt.Status),
		KindID:                mapper.KindID(appt.KindID),
		PractitionerBillingID: &billing,
		LocationDeviceID:      &device,
	}
	if appt.Time != "" {
		t := appt.Time
		rec.Time = &t
	}
	if appt.Notes != "" {
		n := appt.Notes
		rec.Notes = &n
	}
	return rec
}

// deletePass removes tracked future-dated records whose patient no
// longer has an active source appointment. Opt-in, day scope only, and
// never for past or current-day dates.
func (e *Engine) deletePass(ctx context.Context, scope Scope, activePatients map[int64]bool, result *Result) error {
	if (!e.deleteObsolete && !scope.DeleteObsolete) || scope.Kind != ScopeDay {
		return nil
	}
	today := truncate(e.now())
	if !truncate(scope.Date).After(today) {
		return nil
	}

	for _, rec := range e.history.TrackedForDate(scope.Date, scope.kindFilter()) {
		if activePatients[rec.PatientID] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return terminalCtxError(err)
		}
		if err := e.exams.Delete(ctx, rec.ID); err != nil {
			return fmt.Errorf("%w: %v", ErrDependencyUnavailable, err)
		}
		e.history.Remove(rec.Date, rec.PatientID, rec.KindID)
		result.Deleted++
		e.logger.Info().Int64("examination_id", rec.ID).Msg("deleted obsolete examination")
	}
	return nil
}

func (s Scope) kindFilter() *int64 {
	if s.ProcedureKindID == 0 {
		return nil
	}
	k := s.ProcedureKindID
	return &k
}

func singlePatientAction(r *Result) string {
	switch {
	case r.Inserted > 0:
		return "created"
	case r.Updated > 0:
		return "updated"
	default:
		return "already_exists"
	}
}

func terminalCtxError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
