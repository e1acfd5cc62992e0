// Package responder produces assistant replies for user utterances.
//
// Responder is the integration seam for a real retrieval-augmented backend.
// The Stub answers with canned templates; GrpcResponder talks to a remote
// service. WithTimeout and WithRetry decorate any implementation.
package responder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/voicedesk/internal/domain"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrEmptyReply is returned when a backend answers with no text.
var ErrEmptyReply = errors.New("responder: empty reply")

// Responder turns an utterance into reply text for an assistant.
//
// Implementations return a best-effort fallback string when no answer is found
// and fail only on transport or infrastructure errors. They must be safe for
// concurrent use by different sessions.
type Responder interface {
	Respond(ctx context.Context, utterance string, cfg domain.AssistantConfig) (string, error)
}

// Func adapts a function to the Responder interface.
type Func func(ctx context.Context, utterance string, cfg domain.AssistantConfig) (string, error)

// Respond calls f.
func (f Func) Respond(ctx context.Context, utterance string, cfg domain.AssistantConfig) (string, error) {
	return f(ctx, utterance, cfg)
}

type timeoutResponder struct {
	next    Responder
	timeout time.Duration
}

// WithTimeout bounds every call to next by d.
func WithTimeout(next Responder, d time.Duration) Responder {
	if d <= 0 {
		return next
	}
	return &timeoutResponder{next: next, timeout: d}
}

func (t *timeoutResponder) Respond(ctx context.Context, utterance string, cfg domain.AssistantConfig) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Respond(ctx, utterance, cfg)
}

type retryResponder struct {
	next      Responder
	attempts  int
	baseDelay time.Duration
	logger    *slog.Logger
}

// WithRetry retries transient failures of next with exponential backoff.
// attempts counts the first call; values below 2 disable retrying.
func WithRetry(next Responder, attempts int, baseDelay time.Duration, logger *slog.Logger) Responder {
	if attempts < 2 {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &retryResponder{next: next, attempts: attempts, baseDelay: baseDelay, logger: logger}
}

func (r *retryResponder) Respond(ctx context.Context, utterance string, cfg domain.AssistantConfig) (string, error) {
	var lastErr error
	for i := 0; i < r.attempts; i++ {
		reply, err := r.next.Respond(ctx, utterance, cfg)
		if err == nil {
			return reply, nil
		}
		lastErr = err

		if ctx.Err() != nil || !IsTransient(err) || i == r.attempts-1 {
			break
		}

		delay := r.baseDelay * time.Duration(1<<i)
		r.logger.Debug("responder call failed, retrying",
			"assistant_id", cfg.ID,
			"attempt", i+1,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("responder retry aborted: %w", ctx.Err())
		}
	}
	return "", lastErr
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.ResourceExhausted, codes.Aborted, codes.DeadlineExceeded:
			return true
		}
	}
	return false
}
