package testutil

import (
	"context"
	"testing"

	"uniauth/internal/store"

	"github.com/google/uuid"
)

// NewStore opens a private in-memory sqlite database with the full schema.
func NewStore(t *testing.T) *store.Store {
	t.Helper()

	db, err := store.Open(store.DBConfig{
		Driver:       store.DriverSQLite,
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	st := store.New(db)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}
