package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackhub/internal/scheduler"
)

type mockRunner struct {
	result *scheduler.Result
	err    error
	got    []scheduler.Payload
}

func (m *mockRunner) Run(_ context.Context, p scheduler.Payload) (*scheduler.Result, error) {
	m.got = append(m.got, p)
	return m.result, m.err
}

var _ TaskRunner = (*scheduler.Runner)(nil)

func newTestHandler(r *mockRunner) *Handler {
	return &Handler{Runner: r, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestHandle_PassesPayloadThrough(t *testing.T) {
	expired := int64(4)
	runner := &mockRunner{result: &scheduler.Result{Task: scheduler.TaskExpireSubscriptions, Expired: &expired}}

	res, err := newTestHandler(runner).Handle(context.Background(), scheduler.Payload{Task: scheduler.TaskExpireSubscriptions})
	require.NoError(t, err)
	assert.Equal(t, int64(4), *res.Expired)
	assert.Equal(t, []scheduler.Payload{{Task: scheduler.TaskExpireSubscriptions}}, runner.got)
}

func TestHandle_SkippedIsNotAnError(t *testing.T) {
	runner := &mockRunner{result: &scheduler.Result{Task: scheduler.TaskTrialReminders, Skipped: true}}

	res, err := newTestHandler(runner).Handle(context.Background(), scheduler.Payload{Task: scheduler.TaskTrialReminders})
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestHandle_FailureIsReturnedForRetry(t *testing.T) {
	runner := &mockRunner{err: errors.New("database unavailable")}

	_, err := newTestHandler(runner).Handle(context.Background(), scheduler.Payload{Task: scheduler.TaskTrialReminders})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trial_reminders")
}
