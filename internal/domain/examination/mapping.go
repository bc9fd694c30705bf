package examination

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// MappingTables holds the source-to-target id translations loaded from
// the target store.
type MappingTables struct {
	Practitioners map[int64]int64
	Locations     map[int64]int64
	Kinds         map[int64]int64
}

// MappingLoader reads the mapping tables.
type MappingLoader interface {
	LoadMappings(ctx context.Context) (MappingTables, error)
}

// Defaults are the fallback target ids used when a source id has no
// mapping. A miss is logged, never fatal.
type Defaults struct {
	PractitionerBillingID int64
	LocationDeviceID      int64
	KindID                int64
}

// Mapper is the single place where source ids become target ids. All
// fallback handling lives here so callers never carry inline defaults.
type Mapper struct {
	tables   MappingTables
	defaults Defaults
	logger   zerolog.Logger
}

func NewMapper(tables MappingTables, defaults Defaults, logger zerolog.Logger) *Mapper {
	return &Mapper{tables: tables, defaults: defaults, logger: logger}
}

func (m *Mapper) PractitionerBillingID(sourceID int64) int64 {
	if id, ok := m.tables.Practitioners[sourceID]; ok {
		return id
	}
	m.logger.Warn().Int64("source_id", sourceID).Int64("default", m.defaults.PractitionerBillingID).
		Msg("no practitioner mapping, using default")
	return m.defaults.PractitionerBillingID
}

func (m *Mapper) LocationDeviceID(sourceID int64) int64 {
	if id, ok := m.tables.Locations[sourceID]; ok {
		return id
	}
	m.logger.Warn().Int64("source_id", sourceID).Int64("default", m.defaults.LocationDeviceID).
		Msg("no location mapping, using default")
	return m.defaults.LocationDeviceID
}

func (m *Mapper) KindID(sourceID int64) int64 {
	if id, ok := m.tables.Kinds[sourceID]; ok {
		return id
	}
	m.logger.Warn().Int64("source_id", sourceID).Int64("default", m.defaults.KindID).
		Msg("no procedure kind mapping, using default")
	return m.defaults.KindID
}

type mappingLoaderPG struct{ pool *pgxpool.Pool }

func NewMappingLoaderPG(pool *pgxpool.Pool) MappingLoader { return &mappingLoaderPG{pool: pool} }

func (l *mappingLoaderPG) LoadMappings(ctx context.Context) (MappingTables, error) {
	tables := MappingTables{
		Practitioners: make(map[int64]int64),
		Locations:     make(map[int64]int64),
		Kinds:         make(map[int64]int64),
	}

	load := func(query string, dst map[int64]int64) error {
		rows, err := l.pool.Query(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var src, target int64
			if err := rows.Scan(&src, &target); err != nil {
				return err
			}
			dst[src] = target
		}
		return rows.Err()
	}

	if err := load(`SELECT source_id, billing_id FROM practitioner_map`, tables.Practitioners); err != nil {
		return tables, fmt.Errorf("%w: load practitioner map: %v", ErrUnavailable, err)
	}
	if err := load(`SELECT source_id, device_id FROM location_map`, tables.Locations); err != nil {
		return tables, fmt.Errorf("%w: load location map: %v", ErrUnavailable, err)
	}
	if err := load(`SELECT source_id, kind_id FROM kind_map`, tables.Kinds); err != nil {
		return tables, fmt.Errorf("%w: load kind map: %v", ErrUnavailable, err)
	}
	return tables, nil
}
