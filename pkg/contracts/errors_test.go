package contracts_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/UglyGameFace/oddbot-sub001/pkg/contracts"
)

func TestClassifyStatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{http.StatusUnauthorized, contracts.ErrKindAuth},
		{http.StatusForbidden, contracts.ErrKindAuth},
		{http.StatusTooManyRequests, contracts.ErrKindRateLimit},
		{http.StatusInternalServerError, contracts.ErrKindUnavailable},
		{http.StatusBadGateway, contracts.ErrKindUnavailable},
		{http.StatusNotFound, contracts.ErrKindBadResponse},
		{http.StatusUnprocessableEntity, contracts.ErrKindBadResponse},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			err := contracts.Classify("theoddsapi", tt.status, "body")
			if err.Kind != tt.want {
				t.Errorf("Classify(%d).Kind = %s, want %s", tt.status, err.Kind, tt.want)
			}
			if err.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", err.StatusCode, tt.status)
			}
		})
	}
}

func TestClassifyTruncatesBody(t *testing.T) {
	body := strings.Repeat("x", 500)
	err := contracts.Classify("espn", http.StatusBadGateway, body)
	if len(err.Message) > 210 {
		t.Errorf("body not truncated: %d bytes", len(err.Message))
	}
	if !strings.HasSuffix(err.Message, "...") {
		t.Error("truncated body should end with ellipsis")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestWrapTransport(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"deadline exceeded", context.DeadlineExceeded, contracts.ErrKindTimeout},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, contracts.ErrKindTimeout},
		{"refused connection", errors.New("connection refused"), contracts.ErrKindUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fe := contracts.WrapTransport("apisports", tt.err)
			if fe.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", fe.Kind, tt.want)
			}
			if !errors.Is(fe, tt.err) {
				t.Error("wrapped cause lost")
			}
		})
	}
}

func TestWrapTransportWrappedDeadline(t *testing.T) {
	// Deadline errors usually arrive wrapped by net/http.
	cause := fmt.Errorf("Get \"http://x\": %w", context.DeadlineExceeded)
	if fe := contracts.WrapTransport("espn", cause); fe.Kind != contracts.ErrKindTimeout {
		t.Errorf("Kind = %s, want timeout", fe.Kind)
	}
}

func TestErrKindThroughWrapping(t *testing.T) {
	base := contracts.NewRateLimitError("theoddsapi", "quota exhausted")
	wrapped := fmt.Errorf("fetch basketball_nba: %w", base)

	if got := contracts.ErrKind(wrapped); got != contracts.ErrKindRateLimit {
		t.Errorf("ErrKind(wrapped) = %q, want rate_limit", got)
	}
	if !contracts.IsKind(wrapped, contracts.ErrKindRateLimit) {
		t.Error("IsKind failed through wrapping")
	}
	if contracts.IsKind(errors.New("plain"), contracts.ErrKindRateLimit) {
		t.Error("IsKind matched an untyped error")
	}
	if got := contracts.ErrKind(errors.New("plain")); got != "" {
		t.Errorf("ErrKind(plain) = %q, want empty", got)
	}
}

func TestFetchErrorMessage(t *testing.T) {
	withStatus := contracts.Classify("theoddsapi", http.StatusUnauthorized, "bad key")
	if msg := withStatus.Error(); !strings.Contains(msg, "HTTP 401") || !strings.Contains(msg, "theoddsapi") {
		t.Errorf("unexpected message %q", msg)
	}

	withoutStatus := contracts.NewRateLimitError("espn", "bypassed")
	if msg := withoutStatus.Error(); strings.Contains(msg, "HTTP") {
		t.Errorf("status leaked into %q", msg)
	}
}

func TestDeadlineFromRealTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	<-ctx.Done()

	if fe := contracts.WrapTransport("espn", ctx.Err()); fe.Kind != contracts.ErrKindTimeout {
		t.Errorf("Kind = %s, want timeout", fe.Kind)
	}
}
