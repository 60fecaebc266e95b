package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var budgetNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestBudget(remaining int, reset time.Time) *RequestBudget {
	b := NewRequestBudget()
	b.now = func() time.Time { return budgetNow }
	b.remaining = remaining
	b.reset = reset
	return b
}

func rateLimitResponse(headers map[string]string) *http.Response {
	resp := &http.Response{Header: make(http.Header)}
	for k, v := range headers {
		resp.Header.Set(k, v)
	}
	return resp
}

func shortCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	t.Cleanup(cancel)
	return ctx
}

func TestRequestBudget_SpendsAndRefreshes(t *testing.T) {
	b := newTestBudget(50, budgetNow.Add(time.Hour))

	require.NoError(t, b.Acquire(context.Background(), 3))
	assert.Equal(t, 47, b.Remaining())

	b.UpdateFromResponse(rateLimitResponse(map[string]string{
		"X-RateLimit-Remaining": "12",
		"X-RateLimit-Reset":     "1773482400",
	}))
	assert.Equal(t, 12, b.Remaining())
	assert.True(t, b.reset.Equal(time.Unix(1773482400, 0)))
}

func TestRequestBudget_IgnoresMalformedHeaders(t *testing.T) {
	reset := budgetNow.Add(time.Minute)
	b := newTestBudget(9, reset)

	b.UpdateFromResponse(rateLimitResponse(map[string]string{
		"X-RateLimit-Remaining": "lots",
		"X-RateLimit-Reset":     "soon",
		"Retry-After":           "-5",
	}))
	assert.Equal(t, 9, b.Remaining())
	assert.True(t, b.reset.Equal(reset))
	assert.True(t, b.cooldown.IsZero())
	b.UpdateFromResponse(nil)
}

func TestRequestBudget_ExhaustedWaitsForReset(t *testing.T) {
	b := newTestBudget(0, budgetNow.Add(time.Hour))

	err := b.Acquire(shortCtx(t), 1)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), "err = %v", err)
}

func TestRequestBudget_RetryAfterKeepsLongestCooldown(t *testing.T) {
	b := newTestBudget(100, budgetNow.Add(-time.Minute))

	b.UpdateFromResponse(rateLimitResponse(map[string]string{"Retry-After": "90"}))
	b.UpdateFromResponse(rateLimitResponse(map[string]string{"Retry-After": "5"}))
	assert.True(t, b.cooldown.Equal(budgetNow.Add(90*time.Second)), "cooldown = %v", b.cooldown)

	err := b.Acquire(shortCtx(t), 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 100, b.Remaining(), "no request may be spent during a cooldown")
}

func TestRequestBudget_SingleTrialAfterReset(t *testing.T) {
	b := newTestBudget(0, budgetNow.Add(-time.Second))

	require.NoError(t, b.Acquire(context.Background(), 1), "first request after reset goes through")
	assert.Equal(t, 0, b.Remaining())

	err := b.Acquire(shortCtx(t), 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "second request must wait for a refreshed budget")
}

func TestRequestBudget_UpdateWakesWaiter(t *testing.T) {
	b := newTestBudget(0, budgetNow.Add(time.Hour))

	errCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		errCh <- b.Acquire(ctx, 1)
	}()

	time.Sleep(10 * time.Millisecond)
	b.UpdateFromResponse(rateLimitResponse(map[string]string{"X-RateLimit-Remaining": "3"}))

	require.NoError(t, <-errCh)
	assert.Equal(t, 2, b.Remaining())
}

func TestRequestBudget_RejectsBadInput(t *testing.T) {
	b := NewRequestBudget()
	var nilCtx context.Context
	assert.Error(t, b.Acquire(nilCtx, 1))
	assert.Error(t, b.Acquire(context.Background(), 0))
	assert.Error(t, b.Acquire(context.Background(), -2))

	var zero RequestBudget
	assert.Error(t, zero.Acquire(context.Background(), 1))
}

func TestRequestBudget_FedByClientResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "42")
		w.Header().Set("X-RateLimit-Reset", "1773482400")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer srv.Close()

	budget := NewRequestBudget()
	client, err := NewClient(context.Background(), "t0ken", WithBaseURL(srv.URL), WithBudget(budget))
	require.NoError(t, err)
	pub, err := NewPublisher(client)
	require.NoError(t, err)

	exists, err := pub.ReleaseExists(context.Background(), "catalyst/tabs", "v1.0.0")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 42, budget.Remaining())
}
