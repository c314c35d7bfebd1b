// Package server exposes the action runtime over HTTP to LLM runtime
// clients: schema export, invocation, tool status display, and disconnect.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/voxlane/actions/internal/auth"
	"github.com/voxlane/actions/internal/binding"
	"github.com/voxlane/actions/internal/engine"
	"github.com/voxlane/actions/internal/tool"
)

// Dependencies holds shared state injected into all HTTP handlers.
type Dependencies struct {
	Bindings binding.Store
	Catalog  *tool.Catalog
	Engine   *engine.Engine
	Auth     auth.Authenticator
	Gatherer prometheus.Gatherer // nil disables /metrics
	Logger   *zap.Logger
}

// NewRouter builds the HTTP mux with all routes wired up.
func NewRouter(deps *Dependencies) http.Handler {
	mux := http.NewServeMux()

	// Runtime surface (auth required via Bearer vxk_ token)
	mux.HandleFunc("GET /v1/agents/{agent_id}/actions", deps.authMiddleware(deps.handleListActions))
	mux.HandleFunc("POST /v1/agents/{agent_id}/actions/{action}", deps.authMiddleware(deps.handleInvoke))
	mux.HandleFunc("GET /v1/agents/{agent_id}/tools", deps.authMiddleware(deps.handleListTools))
	mux.HandleFunc("POST /v1/agents/{agent_id}/tools/{tool}/disconnect", deps.authMiddleware(deps.handleDisconnect))

	// Health check
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return requestLogging(mux, deps.Logger)
}
