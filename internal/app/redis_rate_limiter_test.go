package app

import (
	"strings"
	"testing"
)

func TestParseLimiterReply(t *testing.T) {
	tests := []struct {
		name           string
		raw            interface{}
		windowMs       int64
		wantCount      int
		wantRetryAfter int
		wantErr        string
	}{
		{
			name:           "counts and rounds ttl up to whole seconds",
			raw:            []interface{}{int64(3), int64(2500)},
			windowMs:       60000,
			wantCount:      3,
			wantRetryAfter: 3,
		},
		{
			name:           "negative ttl falls back to the full window",
			raw:            []interface{}{int64(1), int64(-1)},
			windowMs:       60000,
			wantCount:      1,
			wantRetryAfter: 60,
		},
		{
			name:           "sub-second ttl still asks for at least one second",
			raw:            []interface{}{int64(5), int64(120)},
			windowMs:       60000,
			wantCount:      5,
			wantRetryAfter: 1,
		},
		{
			name:     "rejects a reply that is not a pair",
			raw:      []interface{}{int64(1)},
			windowMs: 60000,
			wantErr:  "response shape",
		},
		{
			name:     "rejects a non-integer count",
			raw:      []interface{}{"many", int64(1000)},
			windowMs: 60000,
			wantErr:  "count type",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parseLimiterReply(tc.raw, tc.windowMs)
			if tc.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Count != tc.wantCount || got.RetryAfterSeconds != tc.wantRetryAfter {
				t.Fatalf("expected count=%d retryAfter=%d, got %+v", tc.wantCount, tc.wantRetryAfter, got)
			}
		})
	}
}

func TestScopedKey(t *testing.T) {
	limiter := NewRedisRateLimiter(nil, "  custom:prefix:  ")

	if got := limiter.scopedKey("job_apply", "worker-1"); got != "custom:prefix:job_apply:worker-1" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := limiter.scopedKey("  ", "worker-1"); got != "" {
		t.Fatalf("expected blank scope to disable counting, got %q", got)
	}
	if got := limiter.scopedKey("job_apply", ""); got != "" {
		t.Fatalf("expected blank subject to disable counting, got %q", got)
	}
}
