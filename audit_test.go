package goToken

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type captureSink struct {
	events chan AuditEvent
}

func newCaptureSink(buffer int) *captureSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &captureSink{events: make(chan AuditEvent, buffer)}
}

func (s *captureSink) Emit(ctx context.Context, event AuditEvent) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

// collect drains events until n arrive or the timeout passes.
func (s *captureSink) collect(n int, timeout time.Duration) []AuditEvent {
	out := make([]AuditEvent, 0, n)
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case ev := <-s.events:
			out = append(out, ev)
		case <-deadline:
			return out
		}
	}
	return out
}

func auditConfig() Config {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.BufferSize = 32
	cfg.Audit.DropIfFull = false
	return cfg
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	sink := &countingSink{}
	engine, _ := newTestEngine(t, testConfig(), func(b *Builder) { b.WithAuditSink(sink) })

	pair, err := engine.Issue(context.Background(), aliceIdentity())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	_, _ = engine.Refresh(context.Background(), pair.RefreshToken)
	engine.Close()

	if sink.Count() != 0 {
		t.Fatalf("expected no audit sink calls when disabled, got %d", sink.Count())
	}
}

func TestAuditRefreshEventsCarryFields(t *testing.T) {
	sink := newCaptureSink(16)
	engine, _ := newTestEngine(t, auditConfig(), func(b *Builder) { b.WithAuditSink(sink) })

	ctx := WithClientIP(context.Background(), "198.51.100.33")
	pair, err := engine.Issue(ctx, aliceIdentity())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	_, _ = engine.Refresh(ctx, pair.RefreshToken)

	events := sink.collect(3, 2*time.Second)
	if len(events) != 3 {
		t.Fatalf("expected 3 audit events, got %d", len(events))
	}
	wantTypes := []string{auditEventTokenIssued, auditEventRefreshSuccess, auditEventRefreshReplay}
	for i, ev := range events {
		if ev.EventType != wantTypes[i] {
			t.Fatalf("event %d: expected %s, got %s", i, wantTypes[i], ev.EventType)
		}
		if ev.IP != "198.51.100.33" {
			t.Fatalf("event %d: expected IP 198.51.100.33, got %q", i, ev.IP)
		}
		if ev.UserID != 42 {
			t.Fatalf("event %d: expected user 42, got %d", i, ev.UserID)
		}
	}
	replay := events[2]
	if replay.Success {
		t.Fatal("replay event must not be marked successful")
	}
	if replay.Error != string(auditErrReplay) {
		t.Fatalf("expected error code %q, got %q", auditErrReplay, replay.Error)
	}
	if replay.Metadata["state"] != "USED" {
		t.Fatalf("expected state USED in replay metadata, got %v", replay.Metadata)
	}
}

func TestAuditNoTokenValuesInEvents(t *testing.T) {
	sink := newCaptureSink(32)
	engine, _ := newTestEngine(t, auditConfig(), func(b *Builder) { b.WithAuditSink(sink) })
	ctx := context.Background()

	pair, err := engine.Issue(ctx, aliceIdentity())
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	next, err := engine.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	ot, err := engine.IssueOneTime(ctx, 42, "alice@example.com", PurposePasswordReset)
	if err != nil {
		t.Fatalf("IssueOneTime failed: %v", err)
	}
	if _, err := engine.Revoke(ctx, next.RefreshToken); err != nil {
		t.Fatalf("Revoke failed: %v", err)
	}

	events := sink.collect(4, 2*time.Second)
	if len(events) == 0 {
		t.Fatal("expected audit events")
	}
	secrets := []string{pair.AccessToken, pair.RefreshToken, next.RefreshToken, ot.Token}
	for _, ev := range events {
		for _, secret := range secrets {
			if strings.Contains(ev.Error, secret) || strings.Contains(ev.Subject, secret) || strings.Contains(ev.TokenID, secret) {
				t.Fatalf("token value leaked into %s event", ev.EventType)
			}
			for k, v := range ev.Metadata {
				if strings.Contains(k, secret) || strings.Contains(v, secret) {
					t.Fatalf("token value leaked into %s metadata", ev.EventType)
				}
			}
		}
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrTokenExpired, auditErrExpired},
		{ErrTokenAlreadyUsedOrRevoked, auditErrReplay},
		{unavailable(context.DeadlineExceeded), auditErrUnavailable},
		{context.Canceled, auditErrInternal},
	}
	for _, tc := range tests {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
