package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mossy-p/reception-signaling/internal/store"
)

var dbSeq int64

// MustOpenTestDB opens a migrated, isolated in-memory SQLite database. The
// connection is closed via t.Cleanup.
func MustOpenTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb_%d?mode=memory&cache=shared", atomic.AddInt64(&dbSeq, 1))
	db, err := store.Open(store.Config{Driver: "sqlite", DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))

	t.Cleanup(func() {
		_ = store.Close(db)
	})
	return db
}
