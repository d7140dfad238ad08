package migrations

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "users.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestUp_SQLite(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	require.NoError(t, Up(ctx, db, "sqlite", zaptest.NewLogger(t)))

	_, err := db.ExecContext(ctx, `INSERT INTO users (username, email) VALUES ('John123', 'john123@gmail.com')`)
	require.NoError(t, err)

	var id int64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT id FROM users WHERE username = 'John123'`).Scan(&id))
	assert.Equal(t, int64(1), id)

	// second run is a no-op
	require.NoError(t, Up(ctx, db, "sqlite", zaptest.NewLogger(t)))
}

func TestUp_UnknownDriver(t *testing.T) {
	err := Up(context.Background(), openSQLite(t), "mysql", zaptest.NewLogger(t))
	assert.EqualError(t, err, `no migrations for driver "mysql"`)
}
