package goToken

import "time"

// SecurityReport summarizes the security-relevant settings of a built Engine.
// Daemons log it once at startup.
type SecurityReport struct {
	SigningAlgorithm      string
	KeyRotationActive     bool
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	Leeway                time.Duration
	IssuerPinned          bool
	AudiencePinned        bool
	OneTimePurposes       []Purpose
	SerializedRotation    bool
	FamilyRevokeOnReplay  bool
	RevokeIssuedAccess    bool
	RefreshThrottleActive bool
	OneTimeThrottleActive bool
	CleanupInterval       time.Duration
	AuditEnabled          bool
}

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}

	purposes := make([]Purpose, 0, 3)
	for _, p := range []Purpose{PurposeEmailVerification, PurposePasswordReset, PurposeAccountActivation} {
		if _, ok := e.config.oneTimeTTLs()[p]; ok {
			purposes = append(purposes, p)
		}
	}

	return SecurityReport{
		SigningAlgorithm:      e.config.JWT.SigningMethod,
		KeyRotationActive:     len(e.config.JWT.VerifyKeys) > 1,
		AccessTTL:             e.config.JWT.AccessTTL,
		RefreshTTL:            e.config.JWT.RefreshTTL,
		Leeway:                e.config.JWT.Leeway,
		IssuerPinned:          e.config.JWT.Issuer != "",
		AudiencePinned:        e.config.JWT.Audience != "",
		OneTimePurposes:       purposes,
		SerializedRotation:    e.config.Rotation.SerializeLocally,
		FamilyRevokeOnReplay:  e.config.Rotation.RevokeFamilyOnReplay,
		RevokeIssuedAccess:    e.config.Blacklist.RevokeIssuedAccess,
		RefreshThrottleActive: e.rateLimiter != nil && e.config.RateLimit.EnableRefreshThrottle,
		OneTimeThrottleActive: e.rateLimiter != nil && e.config.RateLimit.EnableOneTimeThrottle,
		CleanupInterval:       e.config.Cleanup.Interval,
		AuditEnabled:          e.audit != nil,
	}
}
