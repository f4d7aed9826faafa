package flows

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/goToken/blacklist"
	"github.com/MrEthical07/goToken/internal/keylock"
	"github.com/MrEthical07/goToken/internal/tokens"
	"github.com/MrEthical07/goToken/jwt"
	"github.com/MrEthical07/goToken/records"
)

var errNoUser = errors.New("user not found")

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// casOnlyStore hides the Rotator implementation of the wrapped store.
type casOnlyStore struct {
	records.Store
}

// losingStore always loses the conditional update and cannot delete.
type losingStore struct {
	records.Store
}

func (losingStore) ConditionalMarkUsed(context.Context, string, time.Time) (bool, error) {
	return false, nil
}

func (losingStore) Delete(context.Context, string) error {
	return errors.New("connection reset")
}

type harness struct {
	clock     *clock
	factory   *tokens.Factory
	validator *tokens.Validator
	store     *records.MemoryStore
	list      *blacklist.List
	users     map[int64]tokens.Identity
	disabled  map[int64]bool
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	c := &clock{now: time.Unix(1_700_000_000, 0)}
	codec, err := jwt.NewManager(jwt.Config{
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("flows-secret-flows-secret-flows-secret"),
		Now:           c.Now,
	})
	require.NoError(t, err)
	f, err := tokens.NewFactory(codec,
		tokens.AccessSpec{TTL: 15 * time.Minute},
		tokens.RefreshSpec{TTL: 7 * 24 * time.Hour},
		tokens.OneTimeSpec{TTLs: map[jwt.Purpose]time.Duration{
			jwt.PurposeEmailVerification: 24 * time.Hour,
			jwt.PurposePasswordReset:     30 * time.Minute,
		}},
		c.Now,
	)
	require.NoError(t, err)
	cache := blacklist.NewMemoryCache()
	t.Cleanup(cache.Stop)
	return &harness{
		clock:     c,
		factory:   f,
		validator: tokens.NewValidator(codec),
		store:     records.NewMemoryStore(),
		list:      blacklist.New(cache, c.Now),
		users: map[int64]tokens.Identity{
			42: {UserID: 42, Subject: "user42@example.com", Roles: []string{"USER"}},
		},
		disabled: map[int64]bool{},
	}
}

func (h *harness) lookup(_ context.Context, id int64) (tokens.Identity, bool, error) {
	u, ok := h.users[id]
	if !ok {
		return tokens.Identity{}, false, errNoUser
	}
	return u, !h.disabled[id], nil
}

func (h *harness) refreshDeps() RefreshDeps {
	return RefreshDeps{
		Validator:    h.validator,
		Factory:      h.factory,
		Store:        h.store,
		Blacklist:    h.list,
		LookupUser:   h.lookup,
		UserNotFound: errNoUser,
		Now:          h.clock.Now,
	}
}

func (h *harness) revokeDeps() RevokeDeps {
	return RevokeDeps{
		Validator: h.validator,
		Store:     h.store,
		OneTime:   h.store,
		Blacklist: h.list,
		AccessTTL: h.factory.AccessTTL(),
		Now:       h.clock.Now,
	}
}

func (h *harness) issue(t *testing.T, id tokens.Identity) IssueResult {
	t.Helper()
	res := RunIssue(context.Background(), id, IssueDeps{Factory: h.factory, Store: h.store, Now: h.clock.Now})
	require.Equal(t, IssueFailureNone, res.Failure, "issue: %v", res.Err)
	return res
}

func TestRefreshRotatesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.issue(t, h.users[42])

	res := RunRefresh(ctx, issued.Refresh.Token, h.refreshDeps())
	require.Equal(t, RefreshFailureNone, res.Failure, "refresh: %v", res.Err)
	assert.NotEqual(t, issued.Refresh.Token, res.Refresh.Token)

	uid, ok, err := h.validator.UserID(res.Access.Token)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), uid)

	old, err := h.store.FindByToken(ctx, records.HashToken(issued.Refresh.Token))
	require.NoError(t, err)
	assert.True(t, old.Used)

	again := RunRefresh(ctx, issued.Refresh.Token, h.refreshDeps())
	assert.Equal(t, RefreshFailureReplay, again.Failure)
	assert.Equal(t, records.StateUsed, again.State)

	next := RunRefresh(ctx, res.Refresh.Token, h.refreshDeps())
	assert.Equal(t, RefreshFailureNone, next.Failure)
}

func TestRefreshFailuresBeforeStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.issue(t, h.users[42])

	res := RunRefresh(ctx, "not-a-token", h.refreshDeps())
	assert.Equal(t, RefreshFailureDecode, res.Failure)

	res = RunRefresh(ctx, issued.Access.Token, h.refreshDeps())
	assert.Equal(t, RefreshFailureWrongType, res.Failure)

	h.clock.Advance(8 * 24 * time.Hour)
	res = RunRefresh(ctx, issued.Refresh.Token, h.refreshDeps())
	assert.Equal(t, RefreshFailureDecode, res.Failure)
	assert.ErrorIs(t, res.Err, jwt.ErrExpired)
}

func TestRefreshUnknownRecord(t *testing.T) {
	h := newHarness(t)
	refresh, err := h.factory.IssueRefreshToken(h.users[42])
	require.NoError(t, err)

	res := RunRefresh(context.Background(), refresh.Token, h.refreshDeps())
	assert.Equal(t, RefreshFailureNotFound, res.Failure)
	assert.ErrorIs(t, res.Err, records.ErrNotFound)
}

func TestRefreshAccountStateDoesNotConsume(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.issue(t, h.users[42])

	h.disabled[42] = true
	res := RunRefresh(ctx, issued.Refresh.Token, h.refreshDeps())
	assert.Equal(t, RefreshFailureAccountNotUsable, res.Failure)

	delete(h.users, 42)
	res = RunRefresh(ctx, issued.Refresh.Token, h.refreshDeps())
	assert.Equal(t, RefreshFailureUserNotFound, res.Failure)

	rec, err := h.store.FindByToken(ctx, records.HashToken(issued.Refresh.Token))
	require.NoError(t, err)
	assert.True(t, rec.Valid(h.clock.Now()))

	h.users[42] = tokens.Identity{UserID: 42, Subject: "user42@example.com", Roles: []string{"ADMIN"}}
	h.disabled[42] = false
	res = RunRefresh(ctx, issued.Refresh.Token, h.refreshDeps())
	require.Equal(t, RefreshFailureNone, res.Failure)
	roles, err := h.validator.Roles(res.Access.Token)
	require.NoError(t, err)
	assert.Equal(t, []string{"ADMIN"}, roles)
}

func TestRefreshWithoutDirectoryUsesClaims(t *testing.T) {
	h := newHarness(t)
	issued := h.issue(t, h.users[42])
	deps := h.refreshDeps()
	deps.LookupUser = nil

	res := RunRefresh(context.Background(), issued.Refresh.Token, deps)
	require.Equal(t, RefreshFailureNone, res.Failure)
	assert.Equal(t, "user42@example.com", res.Identity.Subject)
	assert.Equal(t, []string{"USER"}, res.Identity.Roles)
}

func TestRefreshConcurrentSingleWinner(t *testing.T) {
	cases := map[string]func(h *harness) RefreshDeps{
		"rotator": func(h *harness) RefreshDeps { return h.refreshDeps() },
		"conditional update": func(h *harness) RefreshDeps {
			d := h.refreshDeps()
			d.Store = casOnlyStore{h.store}
			return d
		},
		"serialized": func(h *harness) RefreshDeps {
			d := h.refreshDeps()
			d.Store = casOnlyStore{h.store}
			d.Locker = keylock.New()
			return d
		},
	}
	for name, build := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			issued := h.issue(t, h.users[42])
			deps := build(h)

			const workers = 16
			results := make([]RefreshResult, workers)
			var wg sync.WaitGroup
			start := make(chan struct{})
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-start
					results[i] = RunRefresh(context.Background(), issued.Refresh.Token, deps)
				}(i)
			}
			close(start)
			wg.Wait()

			wins := 0
			for _, r := range results {
				switch r.Failure {
				case RefreshFailureNone:
					wins++
				case RefreshFailureReplay, RefreshFailureLostRace:
				default:
					t.Fatalf("unexpected failure kind %d: %v", r.Failure, r.Err)
				}
			}
			assert.Equal(t, 1, wins)
			// issued record + one successor; losing successors were discarded
			n, err := h.store.RevokeAllForUser(context.Background(), 42)
			require.NoError(t, err)
			assert.Equal(t, 2, n)
		})
	}
}

func TestRefreshReplayRevokesFamily(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.issue(t, h.users[42])
	deps := h.refreshDeps()
	deps.RevokeFamilyOnReplay = true
	var warned []string
	deps.Warn = func(msg string, _ ...any) { warned = append(warned, msg) }

	first := RunRefresh(ctx, issued.Refresh.Token, deps)
	require.Equal(t, RefreshFailureNone, first.Failure)

	replay := RunRefresh(ctx, issued.Refresh.Token, deps)
	assert.Equal(t, RefreshFailureReplay, replay.Failure)
	// The used original and its successor are both still unrevoked.
	assert.Equal(t, 2, replay.FamilyCount)
	assert.NotEmpty(t, warned)

	stolen := RunRefresh(ctx, first.Refresh.Token, deps)
	assert.Equal(t, RefreshFailureReplay, stolen.Failure)
	assert.Equal(t, records.StateRevoked, stolen.State)
}

func TestRefreshBlacklistedJTI(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.issue(t, h.users[42])
	require.NoError(t, h.list.AddJTI(ctx, issued.Refresh.JTI, "test", issued.Refresh.ExpiresAt))

	res := RunRefresh(ctx, issued.Refresh.Token, h.refreshDeps())
	assert.Equal(t, RefreshFailureBlacklisted, res.Failure)
}

func TestRevokeIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.issue(t, h.users[42])

	first := RunRevoke(ctx, issued.Refresh.Token, h.revokeDeps())
	require.Equal(t, RevokeFailureNone, first.Failure)
	assert.True(t, first.Found)

	second := RunRevoke(ctx, issued.Refresh.Token, h.revokeDeps())
	require.Equal(t, RevokeFailureNone, second.Failure)
	assert.False(t, second.Found)

	res := RunRefresh(ctx, issued.Refresh.Token, h.refreshDeps())
	assert.Equal(t, RefreshFailureBlacklisted, res.Failure)

	v := RunValidate(ctx, issued.Refresh.Token, ValidateDeps{Validator: h.validator, Blacklist: h.list})
	assert.Equal(t, ValidateFailureBlacklisted, v.Failure)
}

func TestRevokeAccessTokenRevokesUserRefreshTokens(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a := h.issue(t, h.users[42])
	h.clock.Advance(time.Second)
	b := h.issue(t, h.users[42])

	res := RunRevoke(ctx, a.Access.Token, h.revokeDeps())
	require.Equal(t, RevokeFailureNone, res.Failure)
	assert.True(t, res.Found)
	assert.Equal(t, 2, res.Count)

	again := RunRevoke(ctx, a.Access.Token, h.revokeDeps())
	assert.False(t, again.Found)

	assert.Equal(t, RefreshFailureReplay, RunRefresh(ctx, b.Refresh.Token, h.refreshDeps()).Failure)

	v := RunValidate(ctx, a.Access.Token, ValidateDeps{Validator: h.validator, Blacklist: h.list})
	assert.Equal(t, ValidateFailureBlacklisted, v.Failure)
	// Other access tokens stay valid until exp unless issued access revocation is enabled.
	v = RunValidate(ctx, b.Access.Token, ValidateDeps{Validator: h.validator, Blacklist: h.list})
	assert.Equal(t, ValidateFailureNone, v.Failure)
}

func TestRevokeAllWithIssuedAccessCutoff(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.issue(t, h.users[42])
	deps := h.revokeDeps()
	deps.RevokeIssuedAccess = true

	h.clock.Advance(time.Minute)
	res := RunRevokeAll(ctx, 42, deps)
	require.Equal(t, RevokeFailureNone, res.Failure)
	assert.Equal(t, 1, res.Count)

	v := RunValidate(ctx, issued.Access.Token, ValidateDeps{Validator: h.validator, Blacklist: h.list})
	assert.Equal(t, ValidateFailureBlacklisted, v.Failure)

	h.clock.Advance(time.Second)
	fresh := h.issue(t, h.users[42])
	v = RunValidate(ctx, fresh.Access.Token, ValidateDeps{Validator: h.validator, Blacklist: h.list})
	assert.Equal(t, ValidateFailureNone, v.Failure)
}

func TestRevokeExpiredRefreshToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.issue(t, h.users[42])
	h.clock.Advance(7*24*time.Hour + time.Second)

	res := RunRevoke(ctx, issued.Refresh.Token, h.revokeDeps())
	require.Equal(t, RevokeFailureNone, res.Failure)
	assert.True(t, res.Found)

	res = RunRevoke(ctx, "garbage", h.revokeDeps())
	assert.Equal(t, RevokeFailureDecode, res.Failure)
}

func TestOneTimeLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	deps := OneTimeDeps{Factory: h.factory, Validator: h.validator, Store: h.store, Blacklist: h.list, Now: h.clock.Now}

	bad := RunIssueOneTime(ctx, OneTimeRequest{UserID: 42, Subject: "user42@example.com", Purpose: jwt.PurposeAccountActivation}, deps)
	assert.Equal(t, OneTimeFailureUnknownPurpose, bad.Failure)

	issued := RunIssueOneTime(ctx, OneTimeRequest{UserID: 42, Subject: "user42@example.com", Purpose: jwt.PurposePasswordReset}, deps)
	require.Equal(t, OneTimeFailureNone, issued.Failure, "issue: %v", issued.Err)

	wrong := RunRedeemOneTime(ctx, issued.Issued.Token, jwt.PurposeEmailVerification, deps)
	assert.Equal(t, OneTimeFailurePurposeMismatch, wrong.Failure)

	ok := RunRedeemOneTime(ctx, issued.Issued.Token, jwt.PurposePasswordReset, deps)
	require.Equal(t, OneTimeFailureNone, ok.Failure, "redeem: %v", ok.Err)
	assert.Equal(t, int64(42), ok.UserID)

	again := RunRedeemOneTime(ctx, issued.Issued.Token, jwt.PurposePasswordReset, deps)
	assert.Equal(t, OneTimeFailureAlreadyUsed, again.Failure)

	refresh := h.issue(t, h.users[42])
	typed := RunRedeemOneTime(ctx, refresh.Refresh.Token, jwt.PurposePasswordReset, deps)
	assert.Equal(t, OneTimeFailureWrongType, typed.Failure)
}

func TestRevokeOneTimeBurnsToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	deps := OneTimeDeps{Factory: h.factory, Validator: h.validator, Store: h.store, Blacklist: h.list, Now: h.clock.Now}
	issued := RunIssueOneTime(ctx, OneTimeRequest{UserID: 42, Subject: "user42@example.com", Purpose: jwt.PurposeEmailVerification}, deps)
	require.Equal(t, OneTimeFailureNone, issued.Failure)

	res := RunRevoke(ctx, issued.Issued.Token, h.revokeDeps())
	assert.True(t, res.Found)
	res = RunRevoke(ctx, issued.Issued.Token, h.revokeDeps())
	assert.False(t, res.Found)

	redeem := RunRedeemOneTime(ctx, issued.Issued.Token, jwt.PurposeEmailVerification, deps)
	assert.Equal(t, OneTimeFailureBlacklisted, redeem.Failure)
}

func TestCleanupDeletesOnlyExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	old := h.issue(t, h.users[42])
	h.clock.Advance(6 * 24 * time.Hour)
	fresh := h.issue(t, h.users[42])
	h.clock.Advance(24 * time.Hour)

	res := RunCleanup(ctx, CleanupDeps{Store: h.store, OneTime: h.store, Now: h.clock.Now})
	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Refresh)

	_, err := h.store.FindByToken(ctx, records.HashToken(old.Refresh.Token))
	assert.ErrorIs(t, err, records.ErrNotFound)
	rec, err := h.store.FindByToken(ctx, records.HashToken(fresh.Refresh.Token))
	require.NoError(t, err)
	assert.True(t, rec.Valid(h.clock.Now()))
}

func TestIntrospectReportsRecordState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.issue(t, h.users[42])
	deps := IntrospectionDeps{Validator: h.validator, Store: h.store, OneTime: h.store, Blacklist: h.list, Now: h.clock.Now}

	res := RunIntrospect(ctx, issued.Refresh.Token, deps)
	require.Equal(t, IntrospectionFailureNone, res.Failure)
	assert.True(t, res.Stateful)
	assert.True(t, res.RecordFound)
	assert.Equal(t, records.StateActive, res.State)

	require.Equal(t, RefreshFailureNone, RunRefresh(ctx, issued.Refresh.Token, h.refreshDeps()).Failure)
	res = RunIntrospect(ctx, issued.Refresh.Token, deps)
	assert.Equal(t, records.StateUsed, res.State)

	res = RunIntrospect(ctx, issued.Access.Token, deps)
	assert.False(t, res.Stateful)
	assert.Equal(t, jwt.TypeAccess, res.Claims.Type)
}

func TestRefreshLostRaceReportsOrphanedSuccessor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	issued := h.issue(t, h.users[42])
	deps := h.refreshDeps()
	deps.Store = losingStore{h.store}
	var warned []string
	deps.Warn = func(msg string, _ ...any) { warned = append(warned, msg) }

	res := RunRefresh(ctx, issued.Refresh.Token, deps)
	assert.Equal(t, RefreshFailureLostRace, res.Failure)
	assert.Contains(t, warned, "goToken: orphaned successor refresh record")
}
