// Package scheduler runs the periodic subscription sweeps.
//
// An external trigger (EventBridge for cmd/sweeper, or an HTTP cron caller
// for the API) names a task; Runner takes a distributed lock for it, runs the
// matching billing sweep and reports the counts. Overlapping triggers for the
// same task run once.
package scheduler

import (
	"time"

	"blackhub/internal/billing"
)

// TaskType identifies a sweep.
type TaskType string

const (
	TaskExpireSubscriptions TaskType = "expire_subscriptions"
	TaskTrialReminders      TaskType = "trial_reminders"
)

// Payload is the event delivered by the trigger:
//
//	{
//	  "task": "trial_reminders",
//	  "reference_time": "2026-03-10T08:00:00Z"  // optional
//	}
type Payload struct {
	Task TaskType `json:"task"`
	// ReferenceTime replaces "now" for manual runs and backfills.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}

// Result reports what a run did. Exactly one of Expired and ReminderCounts is
// set on a completed run; neither is set when the run was skipped.
type Result struct {
	Task    TaskType `json:"task"`
	Skipped bool     `json:"skipped,omitempty"`
	Expired *int64   `json:"expired,omitempty"`
	*billing.ReminderCounts
}
