package server

import (
	"time"

	"github.com/voxlane/actions/internal/registry"
	"github.com/voxlane/actions/internal/schema"
)

type errorResp struct {
	Detail string `json:"detail"`
}

// actionsResp is the schema export for one agent.
type actionsResp struct {
	AgentID string                 `json:"agent_id"`
	Actions []registry.Declaration `json:"actions"`
}

// invokeReq carries the named arguments for one invocation.
type invokeReq struct {
	Arguments map[string]any `json:"arguments"`
}

// invokeResp wraps a successful invocation result.
type invokeResp struct {
	Result any `json:"result"`
}

// invokeErrorResp is the structured failure surface. Issues is present only
// for invalid_arguments.
type invokeErrorResp struct {
	Error invokeError `json:"error"`
}

type invokeError struct {
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Issues    []schema.Issue `json:"issues,omitempty"`
}

// toolStatusResp describes one binding for human display. The sealed
// credential blob never appears here.
type toolStatusResp struct {
	ToolName         string         `json:"tool_name"`
	BindingID        string         `json:"binding_id"`
	IsEnabled        bool           `json:"is_enabled"`
	ConnectionStatus string         `json:"connection_status"`
	AuthStatus       string         `json:"auth_status"`
	DisplayStatus    string         `json:"display_status"`
	TokenExpiresAt   *time.Time     `json:"token_expires_at,omitempty"`
	Config           map[string]any `json:"config,omitempty"`
	DisabledActions  []string       `json:"disabled_actions,omitempty"`
}

type toolsResp struct {
	AgentID string           `json:"agent_id"`
	Tools   []toolStatusResp `json:"tools"`
}

type disconnectResp struct {
	ToolName   string `json:"tool_name"`
	BindingID  string `json:"binding_id"`
	AuthStatus string `json:"auth_status"`
}
