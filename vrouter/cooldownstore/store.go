// Package cooldownstore optionally mirrors vrouter.HealthStore's
// in-memory cooldown/health state to an on-disk sqlite database, so a
// runtime's cooldown survives a gateway restart instead of resetting
// every candidate back to healthy. Grounded on internal/database's
// PoolManager for connection lifecycle (MaxIdleConns/MaxOpenConns/
// health-check ticker) and gorm.io/gorm for the record mapping, the way
// the teacher wraps GORM for its own persistence layer.
package cooldownstore

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/routecodex/routecodex/internal/database"
	"github.com/routecodex/routecodex/vrouter"
)

// Record is the GORM model mirroring one vrouter.HealthState row.
type Record struct {
	RuntimeKey            string `gorm:"primaryKey;column:runtime_key"`
	InPool                bool   `gorm:"column:in_pool"`
	Reason                string `gorm:"column:reason"`
	AuthIssue              bool   `gorm:"column:auth_issue"`
	PriorityTier           int    `gorm:"column:priority_tier"`
	CooldownUntil          *time.Time `gorm:"column:cooldown_until"`
	BlacklistUntil         *time.Time `gorm:"column:blacklist_until"`
	LastErrorSeries        string     `gorm:"column:last_error_series"`
	LastErrorAtMs          int64      `gorm:"column:last_error_at_ms"`
	ConsecutiveErrorCount  int        `gorm:"column:consecutive_error_count"`
	UpdatedAt              time.Time  `gorm:"column:updated_at"`
}

// TableName pins the GORM model to the name the migration created.
func (Record) TableName() string { return "cooldown_records" }

// Store persists vrouter.HealthState snapshots to sqlite and can reload
// them back into a fresh vrouter.HealthStore on startup.
type Store struct {
	db     *gorm.DB
	pool   *database.PoolManager
	logger *zap.Logger
}

// Open connects to (and, if missing, creates) the sqlite file at path.
// Schema is expected to already be migrated via
// internal/migration.NewMigratorFromSQLitePath; Open does not run
// migrations itself so the gateway's migrate subcommand stays the one
// place schema changes are applied. The connection is handed to a
// database.PoolManager so the mirror's single sqlite connection gets the
// same idle-timeout/health-check treatment a multi-connection store
// would, rather than an unmanaged *gorm.DB.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	poolCfg := database.DefaultPoolConfig()
	poolCfg.MaxOpenConns = 1 // sqlite: one writer at a time
	poolCfg.MaxIdleConns = 1
	pool, err := database.NewPoolManager(db, poolCfg, logger)
	if err != nil {
		return nil, err
	}

	return &Store{db: db, pool: pool, logger: logger}, nil
}

// Close releases the underlying sqlite connection via the PoolManager,
// which also stops its health-check ticker.
func (s *Store) Close() error {
	return s.pool.Close()
}

// Save upserts one runtime's current health state.
func (s *Store) Save(ctx context.Context, h vrouter.HealthState) error {
	rec := fromHealthState(h)
	return s.db.WithContext(ctx).Save(&rec).Error
}

// Load reads every persisted record back into a HealthStore, restoring
// state across a gateway restart. Runtimes never persisted (new since
// the last save) are left at HealthStore's healthy default.
// Load must run before the gateway starts serving requests: it mutates
// HealthState fields directly without HealthStore's own lock, which is
// only safe while no other goroutine can be reading or writing health.
func (s *Store) Load(ctx context.Context, health *vrouter.HealthStore) error {
	var records []Record
	if err := s.db.WithContext(ctx).Find(&records).Error; err != nil {
		return err
	}
	for _, rec := range records {
		h := health.Get(rec.RuntimeKey)
		applyRecord(h, rec)
	}
	s.logger.Info("cooldown store loaded", zap.Int("records", len(records)))
	return nil
}

// Sweep persists a full snapshot of a HealthStore, replacing any record
// a runtime already had. Intended to run on a ticker (the same
// HealthChecker loop pattern vrouter's router already uses) so the
// on-disk mirror stays close to the in-memory state without a write per
// request.
func (s *Store) Sweep(ctx context.Context, health *vrouter.HealthStore) error {
	snapshot := health.Snapshot()
	for _, h := range snapshot {
		if err := s.Save(ctx, h); err != nil {
			return err
		}
	}
	return nil
}

func fromHealthState(h vrouter.HealthState) Record {
	rec := Record{
		RuntimeKey:            h.RuntimeKey,
		InPool:                h.InPool,
		Reason:                string(h.Reason),
		AuthIssue:             h.AuthIssue,
		PriorityTier:          h.PriorityTier,
		LastErrorSeries:       h.LastErrorSeries,
		LastErrorAtMs:         h.LastErrorAtMs,
		ConsecutiveErrorCount: h.ConsecutiveErrorCount,
		UpdatedAt:             h.UpdatedAt,
	}
	if !h.CooldownUntil.IsZero() {
		t := h.CooldownUntil
		rec.CooldownUntil = &t
	}
	if !h.BlacklistUntil.IsZero() {
		t := h.BlacklistUntil
		rec.BlacklistUntil = &t
	}
	return rec
}

func applyRecord(h *vrouter.HealthState, rec Record) {
	h.InPool = rec.InPool
	h.Reason = vrouter.HealthReason(rec.Reason)
	h.AuthIssue = rec.AuthIssue
	h.PriorityTier = rec.PriorityTier
	h.LastErrorSeries = rec.LastErrorSeries
	h.LastErrorAtMs = rec.LastErrorAtMs
	h.ConsecutiveErrorCount = rec.ConsecutiveErrorCount
	h.UpdatedAt = rec.UpdatedAt
	if rec.CooldownUntil != nil {
		h.CooldownUntil = *rec.CooldownUntil
	}
	if rec.BlacklistUntil != nil {
		h.BlacklistUntil = *rec.BlacklistUntil
	}
}
