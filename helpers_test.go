package goToken

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("engine-test-secret-engine-test-secret")
	cfg.Cleanup.Interval = 0
	return cfg
}

// newTestEngine builds an in-memory engine on a fake clock. opts run before Build.
func newTestEngine(t *testing.T, cfg Config, opts ...func(*Builder)) (*Engine, *testClock) {
	t.Helper()

	clock := newTestClock()
	b := New().WithConfig(cfg).WithClock(clock.Now)
	for _, opt := range opts {
		opt(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, clock
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, redis.UniversalClient) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	// Record keys expire at absolute times taken from the fake clock.
	mr.SetTime(newTestClock().Now())
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

type mapDirectory struct {
	mu    sync.Mutex
	users map[int64]UserRecord
	err   error
}

func newMapDirectory(users ...UserRecord) *mapDirectory {
	d := &mapDirectory{users: make(map[int64]UserRecord, len(users))}
	for _, u := range users {
		d.users[u.UserID] = u
	}
	return d
}

func (d *mapDirectory) FindUser(_ context.Context, userID int64) (UserRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return UserRecord{}, d.err
	}
	u, ok := d.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (d *mapDirectory) setStatus(userID int64, status AccountStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.users[userID]
	u.Status = status
	d.users[userID] = u
}

func (d *mapDirectory) setRoles(userID int64, roles ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := d.users[userID]
	u.Roles = roles
	d.users[userID] = u
}

func alice() UserRecord {
	return UserRecord{
		UserID:  42,
		Subject: "alice@example.com",
		Roles:   []string{"USER"},
		Status:  AccountActive,
	}
}

func aliceIdentity() Identity {
	return alice().Identity()
}
