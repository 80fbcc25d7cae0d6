package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/forkfleet/forkfleet-backend/pkg/config"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

type ticket struct {
	ID   int
	Name string `gorm:"uniqueIndex"`
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ticket{}))
	return conn
}

func countTickets(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&ticket{}).Count(&n).Error)
	return n
}

func TestWithTx(t *testing.T) {
	conn := openSQLite(t)
	client := Wrap(conn)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ticket{Name: "kept"}).Error
	}))
	assert.EqualValues(t, 1, countTickets(t, conn))

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&ticket{Name: "dropped"}).Error)
		return errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.EqualValues(t, 1, countTickets(t, conn))

	assert.Panics(t, func() {
		_ = client.WithTx(ctx, func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&ticket{Name: "panicked"}).Error)
			panic("kaboom")
		})
	})
	assert.EqualValues(t, 1, countTickets(t, conn))
}

func TestPingAndLockingOnSQLite(t *testing.T) {
	conn := openSQLite(t)
	require.NoError(t, Wrap(conn).Ping(context.Background()))

	require.NoError(t, conn.Create(&ticket{Name: "locked"}).Error)
	var row ticket
	require.NoError(t, ForUpdate(conn).Where("name = ?", "locked").First(&row).Error)
	assert.Equal(t, "locked", row.Name)
}

func TestDialectorFor(t *testing.T) {
	_, err := dialectorFor(config.DBConfig{Driver: "postgres"})
	assert.Error(t, err)

	d, err := dialectorFor(config.DBConfig{Driver: "", DSN: "postgres://localhost/forkfleet"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", d.Name())

	d, err = dialectorFor(config.DBConfig{Driver: "SQLite", DSN: "file::memory:"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", d.Name())

	_, err = dialectorFor(config.DBConfig{Driver: "mysql", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported")
}

func TestQueryLoggerEmitsOnlyFailuresAndSlowQueries(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Output: buf, Format: "json"})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	q := &queryLogger{logg: logg, slow: 100 * time.Millisecond, now: func() time.Time { return now }}
	trace := func() (string, int64) { return "SELECT 1", 1 }
	ctx := context.Background()

	q.Trace(ctx, now.Add(-10*time.Millisecond), trace, nil)
	q.Trace(ctx, now.Add(-10*time.Millisecond), trace, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())

	q.Trace(ctx, now.Add(-time.Second), trace, nil)
	assert.Contains(t, buf.String(), `"message":"slow query"`)
	assert.Contains(t, buf.String(), `"duration_ms":1000`)

	buf.Reset()
	q.Trace(ctx, now, trace, errors.New("relation missing"))
	assert.Contains(t, buf.String(), `"message":"query failed"`)
	assert.Contains(t, buf.String(), `"sql":"SELECT 1"`)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.False(t, IsUniqueViolation(nil, ""))

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_order_number"}
	assert.True(t, IsUniqueViolation(pgErr, "ux_orders_order_number"))
	assert.False(t, IsUniqueViolation(pgErr, "ux_other"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))

	conn := openSQLite(t)
	require.NoError(t, conn.Create(&ticket{Name: "dup"}).Error)
	err := conn.Create(&ticket{Name: "dup"}).Error
	assert.True(t, IsUniqueViolation(err, ""))
}
