package cooldownstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/routecodex/routecodex/vrouter"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	dialector := sqlite.Dialector{Conn: mockDB}
	gormDB, err := gorm.Open(dialector, &gorm.Config{})
	require.NoError(t, err)

	return &Store{db: gormDB, logger: zap.NewNop()}, mock
}

func TestStore_Save(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO .cooldown_records.").WillReturnResult(sqlmock.NewResult(1, 1))

	now := time.Now()
	h := vrouter.HealthState{
		RuntimeKey:            "glm.default",
		InPool:                true,
		Reason:                vrouter.ReasonCooldown,
		CooldownUntil:         now.Add(60 * time.Second),
		ConsecutiveErrorCount: 1,
		UpdatedAt:             now,
	}

	err := store.Save(context.Background(), h)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFromHealthState_ZeroTimesStayNil(t *testing.T) {
	h := vrouter.HealthState{RuntimeKey: "qwen.default", Reason: vrouter.ReasonOK}
	rec := fromHealthState(h)
	assert.Nil(t, rec.CooldownUntil)
	assert.Nil(t, rec.BlacklistUntil)
	assert.Equal(t, "qwen.default", rec.RuntimeKey)
}

func TestApplyRecord_RestoresCooldown(t *testing.T) {
	until := time.Now().Add(30 * time.Second)
	rec := Record{
		RuntimeKey:    "iflow.default",
		Reason:        string(vrouter.ReasonCooldown),
		CooldownUntil: &until,
	}
	h := &vrouter.HealthState{RuntimeKey: "iflow.default"}
	applyRecord(h, rec)

	assert.Equal(t, vrouter.ReasonCooldown, h.Reason)
	assert.True(t, h.CooldownUntil.Equal(until))
	assert.False(t, h.Selectable(time.Now()))
}
