// Package callevents exposes the device-facing HTTP surface: the call-ended
// webhook, the call-end actions, and the reconciliation status and trigger
// endpoints.
package callevents

import (
	"callsync_agent/internal/callevents/handler"
	"callsync_agent/internal/events"
	apphttp "callsync_agent/internal/http"
	"callsync_agent/internal/reconcile"
	"callsync_agent/platform/logger"
	"callsync_agent/platform/validator"
)

// Module is the call events module implementing http.Module.
type Module struct {
	handler *handler.Handler
}

// NewModule creates the call events module.
func NewModule(core *reconcile.Module, bus events.Bus, jobs handler.JobEnqueuer, val *validator.Validator, log *logger.Logger) *Module {
	return &Module{
		handler: handler.New(core, bus, jobs, val, log),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "callevents"
}

// RegisterRoutes mounts the call event routes. Everything requires the
// device shim's bearer token.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	ctx.Protected.POST("/events/call-ended", m.handler.CallEnded)
	ctx.Protected.POST("/calls/assign-self", m.handler.AssignSelf)
	ctx.Protected.POST("/calls/dismiss", m.handler.Dismiss)
	ctx.Protected.POST("/reconcile/run", m.handler.RunReconcile)
	ctx.Protected.POST("/leads/refresh", m.handler.RefreshLeads)
	ctx.Protected.GET("/status", m.handler.Status)
}
