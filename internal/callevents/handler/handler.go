package handler

import (
	"context"
	"net/http"

	"callsync_agent/internal/callevents/transport"
	"callsync_agent/internal/events"
	"callsync_agent/internal/reconcile"
	"callsync_agent/platform/httpkit"
	"callsync_agent/platform/logger"
	"callsync_agent/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// JobEnqueuer triggers background work on demand.
type JobEnqueuer interface {
	EnqueueCallPoll(ctx context.Context) error
	EnqueueLeadsRefresh(ctx context.Context) error
}

// Handler handles call event and reconciliation HTTP requests.
type Handler struct {
	core *reconcile.Module
	bus  events.Bus
	jobs JobEnqueuer
	val  *validator.Validator
	log  *logger.Logger
}

// New creates a call events handler.
func New(core *reconcile.Module, bus events.Bus, jobs JobEnqueuer, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{core: core, bus: bus, jobs: jobs, val: val, log: log}
}

// CallEnded handles a finished-call report from the device shim.
// POST /v1/events/call-ended
func (h *Handler) CallEnded(c *gin.Context) {
	var req transport.CallEndedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed)
		return
	}

	deviceID := httpkit.DeviceID(c)
	err := h.bus.PublishSync(c.Request.Context(), events.CallEnded{
		BaseEvent:       events.NewBaseEvent(),
		PhoneNumber:     req.PhoneNumber,
		CallType:        req.CallType,
		DurationSeconds: req.DurationSeconds,
		DeviceID:        deviceID,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Accepted(c, transport.CallEndedResponse{Result: h.core.CallEnd.Snapshot()})
}

// AssignSelf claims the pending assignable lead for the acting user.
// POST /v1/calls/assign-self
func (h *Handler) AssignSelf(c *gin.Context) {
	snapshot, err := h.core.CallEnd.AssignToSelf(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.CallEndedResponse{Result: snapshot})
}

// Dismiss clears the pending call-end state.
// POST /v1/calls/dismiss
func (h *Handler) Dismiss(c *gin.Context) {
	httpkit.OK(c, transport.CallEndedResponse{Result: h.core.CallEnd.Dismiss()})
}

// RunReconcile queues an immediate poll cycle.
// POST /v1/reconcile/run
func (h *Handler) RunReconcile(c *gin.Context) {
	if err := h.jobs.EnqueueCallPoll(c.Request.Context()); httpkit.HandleError(c, err) {
		return
	}
	httpkit.Accepted(c, gin.H{"status": "queued"})
}

// RefreshLeads queues an immediate lead directory refresh.
// POST /v1/leads/refresh
func (h *Handler) RefreshLeads(c *gin.Context) {
	if err := h.jobs.EnqueueLeadsRefresh(c.Request.Context()); httpkit.HandleError(c, err) {
		return
	}
	httpkit.Accepted(c, gin.H{"status": "queued"})
}

// Status reports the reconciliation state.
// GET /v1/status
func (h *Handler) Status(c *gin.Context) {
	watermark, err := h.core.Watermark.Load(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.StatusResponse{
		CallEnd:     h.core.CallEnd.Snapshot(),
		LeadCount:   len(h.core.Directory.Leads()),
		WatermarkMs: watermark,
	})
}
