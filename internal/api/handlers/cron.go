package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"blackhub/internal/core"
	"blackhub/internal/scheduler"
	"blackhub/internal/types"
)

// TaskRunner runs a locked sweep. scheduler.Runner implements it.
type TaskRunner interface {
	Run(ctx context.Context, p scheduler.Payload) (*scheduler.Result, error)
}

// NotificationSender queues a single lifecycle notification.
// billing.Reconciler implements it.
type NotificationSender interface {
	Notify(ctx context.Context, n types.Notification) error
}

// NotifyRequest is the body of POST /v1/cron/notify.
type NotifyRequest struct {
	UserID   string             `json:"user_id" validate:"required"`
	Template types.TemplateType `json:"template" validate:"required"`
	Plan     types.PlanTier     `json:"plan,omitempty" validate:"omitempty,plan"`
	DaysLeft int                `json:"days_left,omitempty" validate:"gte=0"`
}

// CronHandler exposes the sweeps to an external HTTP scheduler. Every route
// must be mounted behind core.Server.RequireScheduler.
type CronHandler struct {
	runner    TaskRunner
	notifier  NotificationSender
	validator *core.Validator
	logger    *slog.Logger
}

func NewCronHandler(runner TaskRunner, notifier NotificationSender, v *core.Validator, l *slog.Logger) *CronHandler {
	if l == nil {
		l = slog.Default()
	}
	return &CronHandler{runner: runner, notifier: notifier, validator: v, logger: l}
}

// RegisterRoutes mounts the cron endpoints on a router that already applies
// the scheduler check.
func (h *CronHandler) RegisterRoutes(r chi.Router) {
	r.Post("/expire-subscriptions", h.run(scheduler.TaskExpireSubscriptions))
	r.Post("/trial-reminders", h.run(scheduler.TaskTrialReminders))
	r.Post("/notify", h.Notify)
}

// run responds with the sweep counts, e.g. {"task":"expire_subscriptions",
// "expired":3}. A run skipped because another worker holds the lock is a 200
// with skipped=true.
func (h *CronHandler) run(task scheduler.TaskType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := h.runner.Run(r.Context(), scheduler.Payload{Task: task})
		if err != nil {
			h.logger.ErrorContext(r.Context(), "cron sweep failed", "task", task, "error", err)
			core.Error(w, r, err)
			return
		}
		core.JSON(w, r, http.StatusOK, res)
	}
}

// Notify handles POST /v1/cron/notify, which the scheduler uses for renewal
// reminders and manual resends.
func (h *CronHandler) Notify(w http.ResponseWriter, r *http.Request) {
	var req NotifyRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	err := h.notifier.Notify(r.Context(), types.Notification{
		UserID:    req.UserID,
		Template:  req.Template,
		Plan:      req.Plan,
		DaysLeft:  req.DaysLeft,
		RequestID: types.GetRequestID(r.Context()),
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "cron notify failed",
			"user_id", req.UserID,
			"template", req.Template,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusAccepted, map[string]bool{"queued": true})
}
