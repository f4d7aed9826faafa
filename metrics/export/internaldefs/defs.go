package internaldefs

import (
	goToken "github.com/MrEthical07/goToken"
)

// CounterDef names one goToken counter for exporters.
type CounterDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

// HistogramDef names one goToken latency histogram for exporters.
type HistogramDef struct {
	ID   goToken.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goToken.MetricIssueSuccess, Name: "gotoken_issue_success_total", Help: "Token pairs issued."},
	{ID: goToken.MetricIssueFailure, Name: "gotoken_issue_failure_total", Help: "Failed issue calls."},
	{ID: goToken.MetricRefreshSuccess, Name: "gotoken_refresh_success_total", Help: "Successful refresh token rotations."},
	{ID: goToken.MetricRefreshFailure, Name: "gotoken_refresh_failure_total", Help: "Failed refresh calls."},
	{ID: goToken.MetricReplayDetected, Name: "gotoken_replay_detected_total", Help: "Used or revoked refresh tokens presented again."},
	{ID: goToken.MetricRefreshLostRace, Name: "gotoken_refresh_lost_race_total", Help: "Refresh calls that lost the conditional update to a concurrent redemption."},
	{ID: goToken.MetricRefreshRateLimited, Name: "gotoken_refresh_rate_limited_total", Help: "Rate-limited refresh attempts."},
	{ID: goToken.MetricRefreshAccountRejected, Name: "gotoken_refresh_account_rejected_total", Help: "Refresh calls refused for missing or unusable accounts."},
	{ID: goToken.MetricValidateSuccess, Name: "gotoken_validate_success_total", Help: "Successful token validations."},
	{ID: goToken.MetricValidateFailure, Name: "gotoken_validate_failure_total", Help: "Failed token validations."},
	{ID: goToken.MetricBlacklistHit, Name: "gotoken_blacklist_hit_total", Help: "Tokens rejected by the revocation cache."},
	{ID: goToken.MetricRevoke, Name: "gotoken_revoke_total", Help: "Single-token revocations that changed state."},
	{ID: goToken.MetricRevokeAll, Name: "gotoken_revoke_all_total", Help: "Revoke-all-for-user operations."},
	{ID: goToken.MetricBlacklistAdd, Name: "gotoken_blacklist_add_total", Help: "Explicit blacklist entries written."},
	{ID: goToken.MetricOneTimeIssued, Name: "gotoken_one_time_issued_total", Help: "One-time tokens issued."},
	{ID: goToken.MetricOneTimeRedeemed, Name: "gotoken_one_time_redeemed_total", Help: "One-time tokens redeemed."},
	{ID: goToken.MetricOneTimeFailure, Name: "gotoken_one_time_failure_total", Help: "Failed one-time redemptions."},
	{ID: goToken.MetricOneTimeRateLimited, Name: "gotoken_one_time_rate_limited_total", Help: "Rate-limited one-time redemptions."},
	{ID: goToken.MetricCleanupRun, Name: "gotoken_cleanup_runs_total", Help: "Cleanup passes."},
	{ID: goToken.MetricCleanupDeleted, Name: "gotoken_cleanup_deleted_total", Help: "Expired records deleted by cleanup."},
	{ID: goToken.MetricBackendUnavailable, Name: "gotoken_backend_unavailable_total", Help: "Store, cache or directory failures."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goToken.MetricValidateLatency, Name: "gotoken_validate_latency_seconds", Help: "Validate latency histogram."},
	{ID: goToken.MetricRefreshLatency, Name: "gotoken_refresh_latency_seconds", Help: "Refresh latency histogram."},
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "gotoken_audit_dropped_total"

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth
// bucket is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket in instrument names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw to the eight engine buckets.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
