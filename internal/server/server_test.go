package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voxlane/actions/internal/auth"
	"github.com/voxlane/actions/internal/authstate"
	"github.com/voxlane/actions/internal/binding"
	"github.com/voxlane/actions/internal/engine"
	"github.com/voxlane/actions/internal/schema"
	"github.com/voxlane/actions/internal/secret"
	"github.com/voxlane/actions/internal/tool"
)

// memStore is an in-memory binding.Store for handler tests.
type memStore struct {
	mu       sync.Mutex
	bindings map[string]*binding.Binding
}

func newMemStore(bs ...*binding.Binding) *memStore {
	s := &memStore{bindings: make(map[string]*binding.Binding)}
	for _, b := range bs {
		s.bindings[b.ID] = b
	}
	return s
}

func (s *memStore) Get(_ context.Context, id string) (*binding.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (s *memStore) ListByAgent(_ context.Context, agentID string) ([]*binding.Binding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*binding.Binding
	for _, b := range s.bindings {
		if b.AgentID == agentID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) UpdateCredentials(_ context.Context, id string, sealed []byte, status authstate.Status, exp *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bindings[id]
	b.SensitiveConfig = sealed
	b.AuthStatus = status
	b.ConnectionStatus = authstate.ConnectionConnected
	b.TokenExpiresAt = exp
	return nil
}

func (s *memStore) SetAuthStatus(_ context.Context, id string, status authstate.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[id].AuthStatus = status
	return nil
}

func (s *memStore) Disconnect(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bindings[id]
	b.SensitiveConfig = nil
	b.AuthStatus = authstate.StatusNotAuthenticated
	b.TokenExpiresAt = nil
	return nil
}

func echoTool() *tool.Base {
	return tool.MustNew(tool.Definition{
		Name:        "Notes",
		Description: "Scratchpad notes.",
		Auth:        tool.AuthRequirements{Required: false},
		Actions: []schema.Action{
			{
				Name:        "add_note",
				Description: "Record a note.",
				Parameters: []schema.Parameter{
					{Name: "text", Type: schema.TypeString, Required: true, Description: "Note text."},
				},
				Returns: "The stored note.",
			},
		},
	}, tool.HandlerMap{
		"add_note": func(_ context.Context, inv tool.Invocation) (any, error) {
			return map[string]any{"text": inv.Args["text"]}, nil
		},
	})
}

func testRouter(t *testing.T, store *memStore) http.Handler {
	t.Helper()
	catalog := tool.NewCatalog()
	catalog.MustRegister(echoTool())

	var key [32]byte
	vault, err := secret.NewVault(key[:])
	if err != nil {
		t.Fatal(err)
	}

	eng := engine.New(engine.Config{
		Catalog:  catalog,
		Bindings: store,
		Vault:    vault,
		Logger:   zap.NewNop(),
	})

	return NewRouter(&Dependencies{
		Bindings: store,
		Catalog:  catalog,
		Engine:   eng,
		Auth:     auth.NewStaticAuthenticator(),
		Logger:   zap.NewNop(),
	})
}

func notesBinding() *binding.Binding {
	return &binding.Binding{
		ID:               "bnd-1",
		AgentID:          "agent-1",
		ToolName:         "Notes",
		IsEnabled:        true,
		AuthStatus:       authstate.StatusNotAuthenticated,
		ConnectionStatus: authstate.ConnectionNotConnected,
	}
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer vxk_testtesttest")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestListActions(t *testing.T) {
	h := testRouter(t, newMemStore(notesBinding()))
	w := doReq(t, h, "GET", "/v1/agents/agent-1/actions", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	var resp actionsResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Actions) != 1 || resp.Actions[0].Name != "notes_add_note" {
		t.Fatalf("actions = %+v", resp.Actions)
	}
	props, ok := resp.Actions[0].Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatalf("parameters = %+v", resp.Actions[0].Parameters)
	}
	if _, ok := props["text"]; !ok {
		t.Fatal("text parameter missing from exported schema")
	}
}

func TestInvoke(t *testing.T) {
	h := testRouter(t, newMemStore(notesBinding()))
	w := doReq(t, h, "POST", "/v1/agents/agent-1/actions/notes_add_note",
		invokeReq{Arguments: map[string]any{"text": "hello"}})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	var resp invokeResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Result.(map[string]any)["text"] != "hello" {
		t.Fatalf("result = %+v", resp.Result)
	}
}

func TestInvokeValidationFailure(t *testing.T) {
	h := testRouter(t, newMemStore(notesBinding()))
	w := doReq(t, h, "POST", "/v1/agents/agent-1/actions/notes_add_note",
		invokeReq{Arguments: map[string]any{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	var resp invokeErrorResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error.Kind != "invalid_arguments" || len(resp.Error.Issues) != 1 {
		t.Fatalf("error = %+v", resp.Error)
	}
}

func TestInvokeUnknownExposedName(t *testing.T) {
	h := testRouter(t, newMemStore(notesBinding()))
	w := doReq(t, h, "POST", "/v1/agents/agent-1/actions/notes_nope",
		invokeReq{Arguments: map[string]any{}})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	h := testRouter(t, newMemStore(notesBinding()))
	req := httptest.NewRequest("GET", "/v1/agents/agent-1/actions", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestListToolsNeverLeaksCredentials(t *testing.T) {
	b := notesBinding()
	b.AuthStatus = authstate.StatusAuthenticated
	b.ConnectionStatus = authstate.ConnectionConnected
	b.SensitiveConfig = []byte("sealed-credential-blob")
	h := testRouter(t, newMemStore(b))

	w := doReq(t, h, "GET", "/v1/agents/agent-1/tools", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if bytes.Contains(w.Body.Bytes(), []byte("sealed-credential")) {
		t.Fatal("response leaked the sealed credential blob")
	}

	var resp toolsResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Tools) != 1 {
		t.Fatalf("tools = %+v", resp.Tools)
	}
	got := resp.Tools[0]
	if got.AuthStatus != "authenticated" || got.DisplayStatus != "authenticated" {
		t.Fatalf("status = %+v", got)
	}
}

func TestListToolsReportsExpiry(t *testing.T) {
	past := time.Now().Add(-time.Hour)
	b := notesBinding()
	b.AuthStatus = authstate.StatusAuthenticated
	b.ConnectionStatus = authstate.ConnectionConnected
	b.TokenExpiresAt = &past
	h := testRouter(t, newMemStore(b))

	w := doReq(t, h, "GET", "/v1/agents/agent-1/tools", nil)
	var resp toolsResp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Tools[0].AuthStatus != "expired" {
		t.Fatalf("auth status = %q, want expired", resp.Tools[0].AuthStatus)
	}
	if resp.Tools[0].DisplayStatus != "connected_auth_invalid" {
		t.Fatalf("display status = %q", resp.Tools[0].DisplayStatus)
	}
}

func TestDisconnect(t *testing.T) {
	b := notesBinding()
	b.AuthStatus = authstate.StatusAuthenticated
	b.ConnectionStatus = authstate.ConnectionConnected
	b.SensitiveConfig = []byte("blob")
	store := newMemStore(b)
	h := testRouter(t, store)

	w := doReq(t, h, "POST", "/v1/agents/agent-1/tools/Notes/disconnect", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}

	stored, _ := store.Get(context.Background(), "bnd-1")
	if stored.SensitiveConfig != nil {
		t.Fatal("credentials not purged")
	}
	if stored.AuthStatus != authstate.StatusNotAuthenticated {
		t.Fatalf("auth status = %q", stored.AuthStatus)
	}

	w = doReq(t, h, "POST", "/v1/agents/agent-1/tools/CRM/disconnect", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown tool status = %d", w.Code)
	}
}
