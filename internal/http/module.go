// Package http provides HTTP server infrastructure including the Module
// interface that feature modules implement for route registration.
package http

import (
	"callsync_agent/platform/config"

	"github.com/gin-gonic/gin"
)

// Module represents a feature that can register its HTTP routes.
type Module interface {
	// Name returns the module's identifier for logging purposes.
	Name() string
	// RegisterRoutes mounts the module's routes on the provided router group.
	RegisterRoutes(ctx *RouterContext)
}

// RouterContext provides shared dependencies for module route registration.
type RouterContext struct {
	// Engine is the root Gin engine for modules that need engine-level access.
	Engine *gin.Engine
	// V1 is the /v1 route group.
	V1 *gin.RouterGroup
	// Protected is the authenticated route group under /v1.
	Protected *gin.RouterGroup
	// Config is the JWT configuration for auth middleware (scoped access).
	Config config.JWTConfig
	// AuthMiddleware provides the authentication middleware.
	AuthMiddleware gin.HandlerFunc
}
