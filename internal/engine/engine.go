// Package engine is the single choke point that resolves a
// (tool, action, binding, arguments) invocation into an actual provider
// call. It is the only component permitted to open sensitive config.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/voxlane/actions/internal/authstate"
	"github.com/voxlane/actions/internal/binding"
	"github.com/voxlane/actions/internal/metrics"
	"github.com/voxlane/actions/internal/registry"
	"github.com/voxlane/actions/internal/schema"
	"github.com/voxlane/actions/internal/secret"
	"github.com/voxlane/actions/internal/storage"
	"github.com/voxlane/actions/internal/tool"
	"go.uber.org/zap"
)

const (
	// DefaultCallTimeout bounds the tool's external provider call.
	DefaultCallTimeout = 30 * time.Second
	// DefaultRefreshTimeout bounds one credential refresh round trip.
	DefaultRefreshTimeout = 15 * time.Second
)

// ErrNoRefreshCredential means the binding holds no refresh credential, so
// an expired token cannot be refreshed automatically.
var ErrNoRefreshCredential = errors.New("no refresh credential")

// TokenRefresher exchanges a binding's current secrets for fresh ones at
// the provider. Implemented by the platform's auth-flow collaborator.
type TokenRefresher interface {
	Refresh(ctx context.Context, toolName string, secrets map[string]string) (authstate.Credentials, error)
}

// Config configures the Engine.
type Config struct {
	Catalog  *tool.Catalog
	Bindings binding.Store
	Vault    *secret.Vault

	// Tokens is the refresh collaborator. Nil disables automatic refresh;
	// expired bindings then surface authentication_required directly.
	Tokens TokenRefresher

	Writer  storage.EventWriter
	Metrics *metrics.Metrics // nil disables instrumentation

	CallTimeout    time.Duration
	RefreshTimeout time.Duration
	Logger         *zap.Logger
}

// Engine executes validated action invocations. Safe for concurrent use:
// the only cross-invocation coordination is the serialized per-binding
// credential refresh.
type Engine struct {
	catalog        *tool.Catalog
	bindings       binding.Store
	vault          *secret.Vault
	tokens         TokenRefresher
	refresher      *authstate.Refresher
	writer         storage.EventWriter
	metrics        *metrics.Metrics
	callTimeout    time.Duration
	refreshTimeout time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

// New creates an Engine.
func New(cfg Config) *Engine {
	callTimeout := cfg.CallTimeout
	if callTimeout == 0 {
		callTimeout = DefaultCallTimeout
	}
	refreshTimeout := cfg.RefreshTimeout
	if refreshTimeout == 0 {
		refreshTimeout = DefaultRefreshTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		catalog:        cfg.Catalog,
		bindings:       cfg.Bindings,
		vault:          cfg.Vault,
		tokens:         cfg.Tokens,
		refresher:      authstate.NewRefresher(),
		writer:         cfg.Writer,
		metrics:        cfg.Metrics,
		callTimeout:    callTimeout,
		refreshTimeout: refreshTimeout,
		logger:         logger,
		now:            time.Now,
	}
}

// outcome carries the inner execution result plus the audit fields the
// event writer records.
type outcome struct {
	result     any
	agentID    string
	authStatus authstate.Status
	refreshed  bool
}

// Execute runs one action invocation end to end: binding resolution,
// argument validation, authorization gate, provider call. Every invocation
// produces exactly one audit event regardless of outcome.
func (e *Engine) Execute(ctx context.Context, toolName, actionName, bindingID string, args map[string]any) (any, error) {
	start := e.now()
	requestID := uuid.New().String()

	out, err := e.execute(ctx, toolName, actionName, bindingID, args)

	latencyMs := float32(float64(time.Since(start)) / float64(time.Millisecond))
	e.record(requestID, toolName, actionName, bindingID, args, out, err, latencyMs)

	if err != nil {
		return nil, err
	}
	return out.result, nil
}

func (e *Engine) execute(ctx context.Context, toolName, actionName, bindingID string, args map[string]any) (outcome, error) {
	var out outcome

	// 1. Resolve the binding and its administrative switches.
	b, err := e.bindings.Get(ctx, bindingID)
	if err != nil {
		return out, &Error{Kind: KindInternal, Message: "binding lookup failed", Err: err}
	}
	if b == nil {
		return out, errf(KindBindingNotFound, "binding %s not found", bindingID)
	}
	if b.ToolName != toolName {
		return out, errf(KindBindingNotFound, "binding %s does not reference tool %q", bindingID, toolName)
	}
	if !b.IsEnabled {
		return out, errf(KindToolDisabled, "tool %q is disabled for this binding", toolName)
	}
	if b.ActionDisabled(actionName) {
		return out, errf(KindActionDisabled, "action %q is disabled for this binding", actionName)
	}
	out.agentID = b.AgentID
	out.authStatus = b.EffectiveAuthStatus(e.now())

	t, ok := e.catalog.Get(toolName)
	if !ok {
		return out, errf(KindUnknownAction, "tool %q is not registered", toolName)
	}
	action, ok := findAction(t, actionName)
	if !ok {
		return out, errf(KindUnknownAction, "tool %q does not declare action %q", toolName, actionName)
	}

	// 2. Validate arguments. The handler never sees malformed input.
	validated, issues := action.ValidateArgs(args)
	if len(issues) > 0 {
		return out, &Error{Kind: KindInvalidArguments, Message: "argument validation failed", Issues: issues}
	}

	// 3. Authorization gate, including lazily detected expiry.
	secrets, refreshed, err := e.authorize(ctx, b, t)
	if err != nil {
		return out, err
	}
	out.refreshed = refreshed
	if refreshed {
		out.authStatus = authstate.StatusAuthenticated
	}

	// 4. Provider call with a bounded timeout.
	callCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
	defer cancel()

	result, err := t.Execute(callCtx, tool.Invocation{
		Action:  actionName,
		Config:  b.Config,
		Secrets: secrets,
		Args:    validated,
	})
	if err != nil {
		return out, e.mapToolError(ctx, b, err)
	}

	// 5. The result is returned untouched.
	out.result = result
	return out, nil
}

// authorize enforces the auth gate and returns the decrypted secrets for
// the call. When the effective status is expired and a refresh credential
// exists, exactly one refresh runs per binding; concurrent invocations
// share its result.
func (e *Engine) authorize(ctx context.Context, b *binding.Binding, t tool.Tool) (map[string]string, bool, error) {
	req := t.Auth()
	if !req.Required {
		// Best effort: non-auth tools may still carry optional secrets.
		secrets, err := e.vault.Open(b.SensitiveConfig)
		if err != nil {
			secrets = map[string]string{}
		}
		return secrets, false, nil
	}

	switch b.EffectiveAuthStatus(e.now()) {
	case authstate.StatusNotAuthenticated:
		return nil, false, errf(KindAuthenticationRequired, "tool %q is not connected; authorization required", b.ToolName)

	case authstate.StatusExpired:
		creds, err := e.tryRefresh(ctx, b, t)
		if err != nil {
			return nil, false, &Error{
				Kind:    KindAuthenticationRequired,
				Message: fmt.Sprintf("credential for tool %q expired and could not be refreshed", b.ToolName),
				Err:     err,
			}
		}
		return creds.Secrets, true, nil

	default: // authenticated
		secrets, err := e.vault.Open(b.SensitiveConfig)
		if err != nil {
			return nil, false, &Error{
				Kind:    KindAuthenticationRequired,
				Message: fmt.Sprintf("stored credential for tool %q is unusable", b.ToolName),
				Err:     err,
			}
		}
		if len(secrets) == 0 {
			return nil, false, errf(KindAuthenticationRequired, "tool %q has no stored credential", b.ToolName)
		}
		return secrets, false, nil
	}
}

// tryRefresh runs at most one concurrent refresh per binding. The refresh
// itself is detached from the waiter's cancellation so other waiters still
// receive its result.
func (e *Engine) tryRefresh(ctx context.Context, b *binding.Binding, t tool.Tool) (authstate.Credentials, error) {
	if e.tokens == nil || t.Auth().Type != tool.AuthOAuth2 {
		return authstate.Credentials{}, ErrNoRefreshCredential
	}

	detached := context.WithoutCancel(ctx)
	return e.refresher.Do(ctx, b.ID, func() (authstate.Credentials, error) {
		rctx, cancel := context.WithTimeout(detached, e.refreshTimeout)
		defer cancel()

		secrets, err := e.vault.Open(b.SensitiveConfig)
		if err != nil {
			return authstate.Credentials{}, err
		}
		if secrets["refresh_token"] == "" {
			return authstate.Credentials{}, ErrNoRefreshCredential
		}

		creds, err := e.tokens.Refresh(rctx, b.ToolName, secrets)
		if err != nil {
			// The binding stays expired pending manual reconnect; only an
			// explicit disconnect purges the credential.
			if serr := e.bindings.SetAuthStatus(rctx, b.ID, authstate.StatusExpired); serr != nil {
				e.logger.Warn("failed to persist expired status after refresh failure",
					zap.String("binding_id", b.ID),
					zap.Error(serr),
				)
			}
			e.countRefresh(b.ToolName, "error")
			return authstate.Credentials{}, fmt.Errorf("token refresh: %w", err)
		}

		sealed, err := e.vault.Seal(creds.Secrets)
		if err != nil {
			return authstate.Credentials{}, fmt.Errorf("seal refreshed credential: %w", err)
		}
		if err := e.bindings.UpdateCredentials(rctx, b.ID, sealed, authstate.StatusAuthenticated, creds.ExpiresAt); err != nil {
			return authstate.Credentials{}, fmt.Errorf("persist refreshed credential: %w", err)
		}
		e.countRefresh(b.ToolName, "ok")
		return creds, nil
	})
}

// mapToolError classifies a handler failure onto the error taxonomy. A
// provider rejection of the credential actively expires the binding.
func (e *Engine) mapToolError(ctx context.Context, b *binding.Binding, err error) error {
	if errors.Is(err, tool.ErrUnknownAction) {
		return &Error{Kind: KindUnknownAction, Message: "tool rejected action", Err: err}
	}

	var perr *tool.ProviderError
	if errors.As(err, &perr) && perr.Unauthorized {
		if serr := e.bindings.SetAuthStatus(context.WithoutCancel(ctx), b.ID, authstate.StatusExpired); serr != nil {
			e.logger.Warn("failed to persist expired status after provider rejection",
				zap.String("binding_id", b.ID),
				zap.Error(serr),
			)
		}
		return &Error{
			Kind:    KindAuthenticationRequired,
			Message: fmt.Sprintf("provider rejected credential for tool %q", b.ToolName),
			Err:     err,
		}
	}

	// Timeouts and every other downstream failure surface as integration
	// errors; the engine does not retry them.
	return &Error{Kind: KindIntegrationError, Message: "provider call failed", Err: err}
}

func (e *Engine) record(requestID, toolName, actionName, bindingID string, args map[string]any, out outcome, err error, latencyMs float32) {
	outcomeLabel := "ok"
	errorDetail := ""
	if err != nil {
		outcomeLabel = string(KindInternal)
		if kerr, ok := AsError(err); ok {
			outcomeLabel = string(kerr.Kind)
		}
		errorDetail = err.Error()
	}

	if e.metrics != nil {
		e.metrics.Invocations.WithLabelValues(toolName, actionName, outcomeLabel).Inc()
		e.metrics.Latency.WithLabelValues(toolName, actionName).Observe(float64(latencyMs) / 1000)
	}

	if e.writer == nil {
		return
	}
	argsJSON, merr := json.Marshal(args)
	if merr != nil {
		argsJSON = []byte("{}")
	}
	e.writer.Write(&storage.InvocationEvent{
		RequestID:     requestID,
		Timestamp:     e.now(),
		AgentID:       out.agentID,
		BindingID:     bindingID,
		ToolName:      toolName,
		ActionName:    actionName,
		ExposedName:   registry.ExposedName(toolName, actionName),
		ArgumentsJSON: string(argsJSON),
		Outcome:       outcomeLabel,
		ErrorDetail:   errorDetail,
		AuthStatus:    string(out.authStatus),
		Refreshed:     out.refreshed,
		LatencyMs:     latencyMs,
	})
}

func (e *Engine) countRefresh(toolName, outcome string) {
	if e.metrics != nil {
		e.metrics.Refreshes.WithLabelValues(toolName, outcome).Inc()
	}
}

func findAction(t tool.Tool, name string) (schema.Action, bool) {
	for _, a := range t.Actions() {
		if a.Name == name {
			return a, true
		}
	}
	return schema.Action{}, false
}
