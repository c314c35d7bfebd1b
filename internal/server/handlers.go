package server

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/voxlane/actions/internal/authstate"
	"github.com/voxlane/actions/internal/engine"
	"github.com/voxlane/actions/internal/registry"
)

// handleListActions implements GET /v1/agents/{agent_id}/actions: the
// structured declarations an LLM runtime feeds to its function-calling layer.
func (d *Dependencies) handleListActions(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")

	reg, ok := d.buildRegistry(w, r, agentID)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, actionsResp{
		AgentID: agentID,
		Actions: reg.Declarations(),
	})
}

// handleInvoke implements POST /v1/agents/{agent_id}/actions/{action}.
func (d *Dependencies) handleInvoke(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	exposedName := r.PathValue("action")

	var req invokeReq
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Detail: "Invalid JSON body"})
		return
	}

	reg, ok := d.buildRegistry(w, r, agentID)
	if !ok {
		return
	}

	exposed, ok := reg.Resolve(exposedName)
	if !ok {
		writeJSON(w, http.StatusNotFound, invokeErrorResp{Error: invokeError{
			Kind:    string(engine.KindUnknownAction),
			Message: "no action named " + exposedName + " is exposed to this agent",
		}})
		return
	}

	result, err := d.Engine.Execute(r.Context(), exposed.ToolName, exposed.ActionName, exposed.BindingID, req.Arguments)
	if err != nil {
		d.writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invokeResp{Result: result})
}

// handleListTools implements GET /v1/agents/{agent_id}/tools: binding status
// for human display. Sealed credentials are never serialized.
func (d *Dependencies) handleListTools(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")

	bindings, err := d.Bindings.ListByAgent(r.Context(), agentID)
	if err != nil {
		d.Logger.Error("list bindings failed", zap.String("agent_id", agentID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Detail: "binding lookup failed"})
		return
	}

	now := time.Now()
	tools := make([]toolStatusResp, 0, len(bindings))
	for _, b := range bindings {
		effective := b.EffectiveAuthStatus(now)
		tools = append(tools, toolStatusResp{
			ToolName:         b.ToolName,
			BindingID:        b.ID,
			IsEnabled:        b.IsEnabled,
			ConnectionStatus: string(b.ConnectionStatus),
			AuthStatus:       string(effective),
			DisplayStatus:    string(authstate.ForDisplay(b.ConnectionStatus, b.AuthStatus, b.TokenExpiresAt, now)),
			TokenExpiresAt:   b.TokenExpiresAt,
			Config:           b.Config,
			DisabledActions:  b.DisabledActions,
		})
	}

	writeJSON(w, http.StatusOK, toolsResp{AgentID: agentID, Tools: tools})
}

// handleDisconnect implements POST /v1/agents/{agent_id}/tools/{tool}/disconnect.
// It purges stored credentials; the binding and its configuration survive.
func (d *Dependencies) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agent_id")
	toolName := r.PathValue("tool")

	bindings, err := d.Bindings.ListByAgent(r.Context(), agentID)
	if err != nil {
		d.Logger.Error("list bindings failed", zap.String("agent_id", agentID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Detail: "binding lookup failed"})
		return
	}

	for _, b := range bindings {
		if b.ToolName != toolName {
			continue
		}
		if err := d.Bindings.Disconnect(r.Context(), b.ID); err != nil {
			d.Logger.Error("disconnect failed", zap.String("binding_id", b.ID), zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResp{Detail: "disconnect failed"})
			return
		}
		writeJSON(w, http.StatusOK, disconnectResp{
			ToolName:   toolName,
			BindingID:  b.ID,
			AuthStatus: string(authstate.StatusNotAuthenticated),
		})
		return
	}

	writeJSON(w, http.StatusNotFound, errorResp{Detail: "no binding for tool " + toolName})
}

// buildRegistry assembles the agent's exposed-action registry, writing the
// HTTP error itself on failure.
func (d *Dependencies) buildRegistry(w http.ResponseWriter, r *http.Request, agentID string) (*registry.Registry, bool) {
	bindings, err := d.Bindings.ListByAgent(r.Context(), agentID)
	if err != nil {
		d.Logger.Error("list bindings failed", zap.String("agent_id", agentID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Detail: "binding lookup failed"})
		return nil, false
	}

	reg, err := registry.Build(agentID, bindings, d.Catalog)
	if err != nil {
		d.Logger.Error("registry build failed", zap.String("agent_id", agentID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResp{Detail: "registry build failed"})
		return nil, false
	}
	return reg, true
}

// writeEngineError maps an execution failure onto HTTP.
func (d *Dependencies) writeEngineError(w http.ResponseWriter, err error) {
	e, ok := engine.AsError(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, invokeErrorResp{Error: invokeError{
			Kind:    string(engine.KindInternal),
			Message: "internal error",
		}})
		return
	}

	status := http.StatusInternalServerError
	switch e.Kind {
	case engine.KindInvalidArguments:
		status = http.StatusBadRequest
	case engine.KindUnknownAction, engine.KindBindingNotFound:
		status = http.StatusNotFound
	case engine.KindToolDisabled, engine.KindActionDisabled, engine.KindAuthenticationRequired:
		status = http.StatusForbidden
	case engine.KindIntegrationError:
		status = http.StatusBadGateway
	}

	writeJSON(w, status, invokeErrorResp{Error: invokeError{
		Kind:      string(e.Kind),
		Message:   e.Message,
		Retryable: e.Retryable(),
		Issues:    e.Issues,
	}})
}
