package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goToken/records"
)

// CleanupResult reports how many expired records were deleted.
type CleanupResult struct {
	Err     error
	Refresh int
	OneTime int
}

// CleanupDeps captures cleanup dependencies.
type CleanupDeps struct {
	Store   records.Store
	OneTime records.OneTimeStore
	Now     func() time.Time
}

// RunCleanup deletes records whose expiry is at or before now. Validity is
// computed lazily, so this only bounds storage growth.
func RunCleanup(ctx context.Context, deps CleanupDeps) CleanupResult {
	now := deps.Now()
	n, err := deps.Store.DeleteExpired(ctx, now)
	if err != nil {
		return CleanupResult{Err: err}
	}
	res := CleanupResult{Refresh: n}
	if deps.OneTime != nil {
		m, err := deps.OneTime.DeleteExpiredOneTime(ctx, now)
		if err != nil {
			res.Err = err
			return res
		}
		res.OneTime = m
	}
	return res
}
