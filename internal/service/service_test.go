package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/giga89/memento-legacy/internal/config"
	"github.com/giga89/memento-legacy/internal/db"
	"github.com/giga89/memento-legacy/internal/dispatch"
	"github.com/giga89/memento-legacy/internal/models"
	"github.com/giga89/memento-legacy/internal/ws"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newTestDB opens an in-memory sqlite database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// a single connection so every session sees the same :memory: database
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

func testConfig() config.Config {
	return config.Config{
		Port:                   "0",
		DatabaseDSN:            "test",
		JWTSecret:              "test-secret",
		Env:                    "dev",
		AccessTokenTTLMinutes:  15,
		RefreshTokenTTLDays:    7,
		DefaultPeriodSeconds:   3600,
		SweepIntervalSeconds:   10,
		DispatchMaxAttempts:    3,
		DispatchTimeoutSeconds: 1,
	}
}

// fakeSender records deliveries and can be told to fail for given contacts.
type fakeSender struct {
	mu           sync.Mutex
	calls        []dispatch.Delivery
	failContacts map[string]bool
}

func (f *fakeSender) Send(ctx context.Context, d dispatch.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, d)
	if f.failContacts[d.Contact] {
		return errors.New("send failed")
	}
	return nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func newTestDispatch(gdb *gorm.DB, snd dispatch.Sender) *DispatchService {
	return &DispatchService{
		db:             gdb,
		senders:        map[string]dispatch.Sender{"email": snd, "sms": snd},
		maxAttempts:    3,
		attemptTimeout: time.Second,
		retryBaseDelay: time.Millisecond,
	}
}

// mustRegister creates an account with an armed switch and returns its id.
func mustRegister(t *testing.T, gdb *gorm.DB, username string) uint {
	t.Helper()
	us := NewUserService(gdb, testConfig())
	res, err := us.Register(username, "password123")
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return res.ID
}

func loadState(t *testing.T, gdb *gorm.DB, userID uint) models.SwitchState {
	t.Helper()
	var st models.SwitchState
	if err := gdb.Where("user_id = ?", userID).First(&st).Error; err != nil {
		t.Fatalf("load switch state: %v", err)
	}
	return st
}

// setLastHeartbeat rewinds the stored heartbeat so deadlines can be tested
// without waiting for real time to pass.
func setLastHeartbeat(t *testing.T, gdb *gorm.DB, userID uint, at time.Time) {
	t.Helper()
	err := gdb.Model(&models.SwitchState{}).Where("user_id = ?", userID).
		Update("last_heartbeat_at", at).Error
	if err != nil {
		t.Fatalf("set last heartbeat: %v", err)
	}
}

func newSwitchService(gdb *gorm.DB, snd dispatch.Sender) *SwitchService {
	return NewSwitchService(gdb, newTestDispatch(gdb, snd), ws.NewHub())
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
