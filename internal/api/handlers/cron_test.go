package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackhub/internal/billing"
	"blackhub/internal/scheduler"
	"blackhub/internal/types"
)

type mockTaskRunner struct {
	runFn    func(ctx context.Context, p scheduler.Payload) (*scheduler.Result, error)
	payloads []scheduler.Payload
}

func (m *mockTaskRunner) Run(ctx context.Context, p scheduler.Payload) (*scheduler.Result, error) {
	m.payloads = append(m.payloads, p)
	if m.runFn != nil {
		return m.runFn(ctx, p)
	}
	return &scheduler.Result{Task: p.Task}, nil
}

type mockNotificationSender struct {
	err  error
	sent []types.Notification
}

func (m *mockNotificationSender) Notify(_ context.Context, n types.Notification) error {
	m.sent = append(m.sent, n)
	return m.err
}

var (
	_ TaskRunner         = (*mockTaskRunner)(nil)
	_ NotificationSender = (*mockNotificationSender)(nil)
)

func newCronRouter(runner *mockTaskRunner, notifier *mockNotificationSender) http.Handler {
	r := chi.NewRouter()
	NewCronHandler(runner, notifier, testValidator(), testLogger()).RegisterRoutes(r)
	return r
}

func TestCron_ExpireSubscriptions(t *testing.T) {
	expired := int64(3)
	runner := &mockTaskRunner{runFn: func(_ context.Context, p scheduler.Payload) (*scheduler.Result, error) {
		return &scheduler.Result{Task: p.Task, Expired: &expired}, nil
	}}

	rr := httptest.NewRecorder()
	newCronRouter(runner, &mockNotificationSender{}).ServeHTTP(rr, makeRequest(nil, http.MethodPost, "/expire-subscriptions", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"task":"expire_subscriptions","expired":3}`, rr.Body.String())
	require.Len(t, runner.payloads, 1)
	assert.Nil(t, runner.payloads[0].ReferenceTime)
}

func TestCron_TrialReminders(t *testing.T) {
	runner := &mockTaskRunner{runFn: func(_ context.Context, p scheduler.Payload) (*scheduler.Result, error) {
		return &scheduler.Result{Task: p.Task, ReminderCounts: &billing.ReminderCounts{Day5: 2, Day6: 1}}, nil
	}}

	rr := httptest.NewRecorder()
	newCronRouter(runner, &mockNotificationSender{}).ServeHTTP(rr, makeRequest(nil, http.MethodPost, "/trial-reminders", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"task":"trial_reminders","trial_reminder_day5":2,"trial_reminder_day6":1}`, rr.Body.String())
}

func TestCron_SkippedRun(t *testing.T) {
	runner := &mockTaskRunner{runFn: func(_ context.Context, p scheduler.Payload) (*scheduler.Result, error) {
		return &scheduler.Result{Task: p.Task, Skipped: true}, nil
	}}

	rr := httptest.NewRecorder()
	newCronRouter(runner, &mockNotificationSender{}).ServeHTTP(rr, makeRequest(nil, http.MethodPost, "/expire-subscriptions", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"task":"expire_subscriptions","skipped":true}`, rr.Body.String())
}

func TestCron_RunError(t *testing.T) {
	runner := &mockTaskRunner{runFn: func(context.Context, scheduler.Payload) (*scheduler.Result, error) {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable, "lock store unavailable", errors.New("dial tcp"))
	}}

	rr := httptest.NewRecorder()
	newCronRouter(runner, &mockNotificationSender{}).ServeHTTP(rr, makeRequest(nil, http.MethodPost, "/trial-reminders", nil))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestCron_Notify(t *testing.T) {
	notifier := &mockNotificationSender{}
	body := map[string]any{"user_id": "u1", "template": types.TemplateSubscriptionRenewalReminder, "plan": "pro", "days_left": 3}

	rr := httptest.NewRecorder()
	newCronRouter(&mockTaskRunner{}, notifier).ServeHTTP(rr, makeRequest(userContext("", ""), http.MethodPost, "/notify", body))

	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	require.Len(t, notifier.sent, 1)
	n := notifier.sent[0]
	assert.Equal(t, "u1", n.UserID)
	assert.Equal(t, types.TemplateSubscriptionRenewalReminder, n.Template)
	assert.Equal(t, types.PlanPro, n.Plan)
	assert.Equal(t, 3, n.DaysLeft)
	assert.Equal(t, "req-test", n.RequestID)
}

func TestCron_NotifyValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing user", `{"template":"welcome"}`},
		{"missing template", `{"user_id":"u1"}`},
		{"bad plan", `{"user_id":"u1","template":"welcome","plan":"gold"}`},
		{"negative days", `{"user_id":"u1","template":"welcome","days_left":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &mockNotificationSender{}
			rr := httptest.NewRecorder()
			newCronRouter(&mockTaskRunner{}, notifier).ServeHTTP(rr, makeRequest(nil, http.MethodPost, "/notify", tt.body))

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Empty(t, notifier.sent)
		})
	}
}
