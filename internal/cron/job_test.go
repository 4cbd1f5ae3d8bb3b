package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sportedge/sportedge-backend/internal/users"
	"github.com/sportedge/sportedge-backend/pkg/db"
	"github.com/sportedge/sportedge-backend/pkg/db/models"
	"github.com/sportedge/sportedge-backend/pkg/enums"
	"github.com/sportedge/sportedge-backend/pkg/outbox"
)

var jobNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newCronDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:cron_%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func outboxRow(t *testing.T, conn *gorm.DB, publishedAt *time.Time) uuid.UUID {
	t.Helper()
	row := models.OutboxEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		PublishedAt:   publishedAt,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row.ID
}

func TestOutboxRetentionDeletesOnlyOldPublishedRows(t *testing.T) {
	t.Parallel()
	conn := newCronDB(t)
	old := jobNow.Add(-40 * 24 * time.Hour)
	recent := jobNow.Add(-2 * 24 * time.Hour)

	outboxRow(t, conn, &old)
	keptRecent := outboxRow(t, conn, &recent)
	keptPending := outboxRow(t, conn, nil)

	job := &OutboxRetention{
		DB:        db.Wrap(conn),
		Outbox:    outbox.NewRepository(conn),
		Retention: 30 * 24 * time.Hour,
		now:       func() time.Time { return jobNow },
	}
	deleted, err := job.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	var left []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Order("created_at").Pluck("id", &left).Error)
	require.ElementsMatch(t, []uuid.UUID{keptRecent, keptPending}, left)
}

func TestOutboxRetentionRequiresSettings(t *testing.T) {
	t.Parallel()
	_, err := (&OutboxRetention{}).Run(context.Background())
	require.Error(t, err)

	conn := newCronDB(t)
	_, err = (&OutboxRetention{DB: db.Wrap(conn), Outbox: outbox.NewRepository(conn)}).Run(context.Background())
	require.ErrorContains(t, err, "retention")
}

func TestExpiredResetTokensClearsOnlyLapsedDigests(t *testing.T) {
	t.Parallel()
	conn := newCronDB(t)
	seed := func(email string, expiresAt time.Time) uuid.UUID {
		digest := "digest-" + email
		user := models.User{
			FirstName:              "Lena",
			LastName:               "Ortiz",
			Email:                  email,
			PasswordHash:           "hash",
			Country:                "Spain",
			City:                   "Bilbao",
			Address:                "Gran Via 4",
			PasswordResetTokenHash: &digest,
			PasswordResetExpiresAt: &expiresAt,
		}
		require.NoError(t, conn.Create(&user).Error)
		return user.ID
	}
	lapsed := seed("lapsed@example.com", jobNow.Add(-time.Minute))
	live := seed("live@example.com", jobNow.Add(time.Hour))

	job := &ExpiredResetTokens{
		Users: users.NewRepository(conn),
		now:   func() time.Time { return jobNow },
	}
	cleared, err := job.Run(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, cleared)

	var swept models.User
	require.NoError(t, conn.Take(&swept, "id = ?", lapsed).Error)
	require.Nil(t, swept.PasswordResetTokenHash)
	require.Nil(t, swept.PasswordResetExpiresAt)

	var kept models.User
	require.NoError(t, conn.Take(&kept, "id = ?", live).Error)
	require.NotNil(t, kept.PasswordResetTokenHash)
}
