package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackhub/internal/config"
	"blackhub/internal/notifications"
	"blackhub/internal/scheduler"
	"blackhub/internal/types"
)

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"--task=trial_reminders", "--reference-time=2026-03-10T08:00:00Z", "--no-notify"}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, scheduler.TaskTrialReminders, opts.Payload.Task)
	require.NotNil(t, opts.Payload.ReferenceTime)
	assert.Equal(t, time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC), opts.Payload.ReferenceTime.UTC())
	assert.True(t, opts.NoNotify)
}

func TestParseOptions_List(t *testing.T) {
	opts, err := parseOptions([]string{"--list"}, io.Discard)
	require.NoError(t, err)
	assert.True(t, opts.List)
}

func TestParseOptions_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing task", nil, "--task is required"},
		{"unknown task", []string{"--task=cleanup"}, "unknown task"},
		{"bad time", []string{"--task=expire_subscriptions", "--reference-time=yesterday"}, "RFC3339"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseOptions(tt.args, io.Discard)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPrintTasks(t *testing.T) {
	var buf bytes.Buffer
	printTasks(&buf)

	assert.Contains(t, buf.String(), "expire_subscriptions")
	assert.Contains(t, buf.String(), "trial_reminders")
}

func TestNoNotifyDispatcher(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	d, drain, err := newDispatcher(context.Background(), &config.Config{}, true, notifications.Stores{}, logger)
	require.NoError(t, err)
	defer drain()

	require.NoError(t, d.Dispatch(context.Background(), types.Notification{UserID: "u1", Template: types.TemplateTrialReminderDay5, DaysLeft: 2}))
	assert.True(t, strings.Contains(buf.String(), `"user_id":"u1"`))
}
