package services

import (
	"fmt"
	"testing"

	"easyearn-backend/models"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a fresh in-memory SQLite database per test. SQLite
// enforces the same unique indexes and transaction semantics the engine
// relies on in Postgres, so idempotency and clamping are tested for real.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.TaskClaim{},
		&models.Transaction{},
		&models.StreakCaseOpen{},
		&models.Withdrawal{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, balanceCents int64) *models.User {
	t.Helper()
	user := &models.User{
		ID:                  uuid.NewString(),
		Email:               uuid.NewString() + "@test.local",
		Username:            "tester",
		Status:              models.UserStatusActive,
		BalanceCents:        balanceCents,
		LifetimeEarnedCents: balanceCents,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func reloadUser(t *testing.T, db *gorm.DB, id string) *models.User {
	t.Helper()
	var user models.User
	if err := db.First(&user, "id = ?", id).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	return &user
}

func countTransactions(t *testing.T, db *gorm.DB, userID string, txnType models.TransactionType) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&models.Transaction{}).
		Where("user_id = ? AND type = ?", userID, txnType).
		Count(&n).Error; err != nil {
		t.Fatalf("count transactions: %v", err)
	}
	return n
}
