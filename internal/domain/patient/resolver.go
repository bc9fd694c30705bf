package patient

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/phoenikes/calldoc-sync/internal/domain/appointment"
)

// MatchSource names the stage that resolved an appointment to a patient.
type MatchSource string

const (
	MatchExternalID  MatchSource = "external-id"
	MatchInsuranceID MatchSource = "insurance-id"
	MatchNameDOB     MatchSource = "name-dob"
	MatchCreated     MatchSource = "created"
)

// Resolution is the outcome of resolving one appointment.
type Resolution struct {
	PatientID   int64
	ExternalID  int64
	MatchSource MatchSource
	Created     bool
}

// cacheCap bounds the per-run identity cache.
const cacheCap = 500

// Resolver maps appointments onto target-store patient identities using
// staged matching, ordered by confidence. It creates at most one new
// identity per unresolved appointment and never merges or deletes.
//
// A Resolver is scoped to one reconciliation run. Its cache keeps
// already-resolved identities so repeated appointments for the same
// patient hit the store once; entries are evicted oldest first.
type Resolver struct {
	repo   Repository
	index  InsuranceIndex
	logger zerolog.Logger

	cache      map[string]Resolution
	cacheOrder []string
}

func NewResolver(repo Repository, index InsuranceIndex, logger zerolog.Logger) *Resolver {
	return &Resolver{
		repo:   repo,
		index:  index,
		logger: logger,
		cache:  make(map[string]Resolution),
	}
}

// Resolve finds or creates the patient identity for an appointment.
// Stages, each short-circuiting on a confident hit:
//
//  1. external patient id, direct lookup
//  2. insurance number via the auxiliary index, then external-id lookup
//  3. normalized surname + given name + birth date; an ambiguous
//     multi-match counts as no match
//  4. create a new identity from the appointment's fields
func (r *Resolver) Resolve(ctx context.Context, appt appointment.Record) (Resolution, error) {
	key := cacheKey(appt)
	if res, ok := r.cache[key]; ok {
		return res, nil
	}

	res, err := r.resolve(ctx, appt)
	if err != nil {
		return Resolution{}, err
	}

	r.cachePut(key, res)
	return res, nil
}

func (r *Resolver) resolve(ctx context.Context, appt appointment.Record) (Resolution, error) {
	// The strongest external id seen so far. If every lookup stage
	// misses, the created identity is keyed under it.
	knownExternalID := appt.ExternalPatientID

	if appt.ExternalPatientID != nil {
		p, err := r.repo.GetByExternalID(ctx, *appt.ExternalPatientID)
		if err == nil {
			return Resolution{PatientID: p.ID, ExternalID: *appt.ExternalPatientID, MatchSource: MatchExternalID}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Resolution{}, err
		}
	}

	if appt.InsuranceNumber != nil {
		externalID, ok, err := r.index.ExternalIDByInsurance(ctx, *appt.InsuranceNumber)
		if err != nil {
			return Resolution{}, err
		}
		if ok {
			p, err := r.repo.GetByExternalID(ctx, externalID)
			if err == nil {
				return Resolution{PatientID: p.ID, ExternalID: externalID, MatchSource: MatchInsuranceID}, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return Resolution{}, err
			}
			// Known external id without a patient row. Remember it and
			// keep matching; the row may exist under name and birth
			// date without carrying the id.
			knownExternalID = &externalID
		}
	}

	if appt.LastName != "" && appt.FirstName != "" && appt.BirthDate != nil {
		matches, err := r.repo.FindByNameDOB(ctx, appt.LastName, appt.FirstName, *appt.BirthDate)
		if err != nil {
			return Resolution{}, err
		}
		switch len(matches) {
		case 0:
			// fall through to create
		case 1:
			p := matches[0]
			res := Resolution{PatientID: p.ID, MatchSource: MatchNameDOB}
			if p.ExternalID != nil {
				res.ExternalID = *p.ExternalID
			}
			return res, nil
		default:
			r.logger.Warn().
				Str("last_name", appt.LastName).
				Int("matches", len(matches)).
				Msg("ambiguous name and birth date match, treating as no match")
		}
	}

	return r.create(ctx, appt, knownExternalID)
}

// create inserts a new identity. When no external id is known one is
// allocated as max+1, mirroring how the target store numbers patients.
func (r *Resolver) create(ctx context.Context, appt appointment.Record, externalID *int64) (Resolution, error) {
	if appt.LastName == "" || appt.FirstName == "" || appt.BirthDate == nil {
		return Resolution{}, fmt.Errorf("cannot create patient for appointment %d: name or birth date missing", appt.ID)
	}

	// Re-check by external id right before inserting. The earlier
	// stages may have been skipped when the id came from the index.
	if externalID != nil {
		p, err := r.repo.GetByExternalID(ctx, *externalID)
		if err == nil {
			return Resolution{PatientID: p.ID, ExternalID: *externalID, MatchSource: MatchExternalID}, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Resolution{}, err
		}
	}

	id := int64(0)
	if externalID != nil {
		id = *externalID
	} else {
		max, err := r.repo.MaxExternalID(ctx)
		if err != nil {
			return Resolution{}, err
		}
		id = max + 1
	}

	identity := &Identity{
		ExternalID:      &id,
		InsuranceNumber: appt.InsuranceNumber,
		FirstName:       strings.TrimSpace(appt.FirstName),
		LastName:        strings.TrimSpace(appt.LastName),
		BirthDate:       *appt.BirthDate,
	}

	created, err := r.repo.Create(ctx, identity)
	if err != nil {
		return Resolution{}, err
	}

	r.logger.Info().
		Int64("patient_id", created.ID).
		Int64("external_id", id).
		Msg("created new patient identity")

	return Resolution{PatientID: created.ID, ExternalID: id, MatchSource: MatchCreated, Created: true}, nil
}

func (r *Resolver) cachePut(key string, res Resolution) {
	if _, exists := r.cache[key]; !exists && len(r.cache) >= cacheCap {
		oldest := r.cacheOrder[0]
		r.cacheOrder = r.cacheOrder[1:]
		delete(r.cache, oldest)
	}
	if _, exists := r.cache[key]; !exists {
		r.cacheOrder = append(r.cacheOrder, key)
	}
	r.cache[key] = res
}

// cacheKey identifies a patient by the strongest identifier the
// appointment carries.
func cacheKey(appt appointment.Record) string {
	if appt.ExternalPatientID != nil {
		return fmt.Sprintf("ext:%d", *appt.ExternalPatientID)
	}
	if appt.InsuranceNumber != nil {
		return "ins:" + *appt.InsuranceNumber
	}
	dob := ""
	if appt.BirthDate != nil {
		dob = appt.BirthDate.Format("2006-01-02")
	}
	return "nm:" + strings.ToLower(strings.TrimSpace(appt.LastName)) + "|" +
		strings.ToLower(strings.TrimSpace(appt.FirstName)) + "|" + dob
}
