package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestIdempotency_Migration_UniqueScopeKey(t *testing.T) {
	db := newTestDB(t)
	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasIndex(&Idempotency{}, "ux_user_scope_key") {
		t.Fatalf("expected composite index ux_user_scope_key to exist")
	}

	now := time.Now().UTC()
	rec := &Idempotency{
		ID:         "id-1",
		UserID:     "u1",
		Scope:      "analyze",
		Key:        "k1",
		ResourceID: "r1",
		Status:     200,
		ExpiresAt:  now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.UserID != "u1" || got.Scope != "analyze" || got.Key != "k1" || got.ResourceID != "r1" || got.Status != 200 {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt should be set by autoCreateTime")
	}

	// same key under another scope is a different operation
	other := *rec
	other.ID, other.Scope = "id-2", "chat"
	if err := db.Create(&other).Error; err != nil {
		t.Fatalf("insert other scope: %v", err)
	}

	dup := *rec
	dup.ID = "id-3"
	if err := db.Create(&dup).Error; err == nil {
		t.Fatalf("expected UNIQUE constraint violation on (user_id, scope, key)")
	}
}
