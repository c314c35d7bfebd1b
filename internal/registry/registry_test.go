package registry

import (
	"context"
	"testing"

	"github.com/voxlane/actions/internal/binding"
	"github.com/voxlane/actions/internal/schema"
	"github.com/voxlane/actions/internal/tool"
)

func noopHandler(context.Context, tool.Invocation) (any, error) { return nil, nil }

func calendarTool(t *testing.T) tool.Tool {
	t.Helper()
	return tool.MustNew(tool.Definition{
		Name:        "Calendar",
		Description: "Calendar integration",
		Auth:        tool.AuthRequirements{Required: true, Type: tool.AuthOAuth2},
		Actions: []schema.Action{
			{
				Name:        "list_events",
				Description: "List upcoming events",
				Parameters: []schema.Parameter{
					{Name: "time_min", Type: schema.TypeDatetime, Required: true, Description: "Lower bound"},
				},
				Returns: "A list of events",
			},
			{Name: "create_event", Description: "Create an event"},
		},
	}, tool.HandlerMap{
		"list_events":  noopHandler,
		"create_event": noopHandler,
	})
}

func testCatalog(t *testing.T) *tool.Catalog {
	t.Helper()
	c := tool.NewCatalog()
	c.MustRegister(calendarTool(t))
	return c
}

func enabledBinding(id, toolName string) *binding.Binding {
	return &binding.Binding{ID: id, AgentID: "agent-1", ToolName: toolName, IsEnabled: true}
}

func TestBuild_ExposedNames(t *testing.T) {
	r, err := Build("agent-1", []*binding.Binding{enabledBinding("bnd-1", "Calendar")}, testCatalog(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Resolve("calendar_list_events"); !ok {
		t.Fatalf("expected calendar_list_events, have %v", r.order)
	}
	if _, ok := r.Resolve("calendar_create_event"); !ok {
		t.Fatalf("expected calendar_create_event, have %v", r.order)
	}
}

func TestExposedName_Normalization(t *testing.T) {
	cases := map[string]string{
		ExposedName("Calendar", "list_events"):    "calendar_list_events",
		ExposedName("My CRM!", "Fetch-Contacts"):  "my_crm_fetch_contacts",
		ExposedName("email", "send  message"):     "email_send_message",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	}
}

func TestBuild_DisabledActionNotExposed(t *testing.T) {
	b := enabledBinding("bnd-1", "Calendar")
	b.DisabledActions = []string{"create_event"}
	r, err := Build("agent-1", []*binding.Binding{b}, testCatalog(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Resolve("calendar_create_event"); ok {
		t.Fatal("disabled action must not be exposed at all")
	}
	if _, ok := r.Resolve("calendar_list_events"); !ok {
		t.Fatal("remaining actions must still be exposed")
	}
}

func TestBuild_DisabledBindingSkipped(t *testing.T) {
	b := enabledBinding("bnd-1", "Calendar")
	b.IsEnabled = false
	r, err := Build("agent-1", []*binding.Binding{b}, testCatalog(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(r.List()) != 0 {
		t.Fatalf("disabled binding must expose nothing, got %v", r.order)
	}
}

func TestBuild_CollisionFailsFast(t *testing.T) {
	_, err := Build("agent-1", []*binding.Binding{
		enabledBinding("bnd-1", "Calendar"),
		enabledBinding("bnd-2", "Calendar"),
	}, testCatalog(t))
	if err == nil {
		t.Fatal("expected collision error for two bindings of the same tool")
	}
}

func TestBuild_UnknownTool(t *testing.T) {
	_, err := Build("agent-1", []*binding.Binding{enabledBinding("bnd-1", "ghost")}, testCatalog(t))
	if err == nil {
		t.Fatal("expected error for binding referencing unknown tool")
	}
}

func TestBuild_DisabledActionMustBeDeclared(t *testing.T) {
	b := enabledBinding("bnd-1", "Calendar")
	b.DisabledActions = []string{"ghost_action"}
	if _, err := Build("agent-1", []*binding.Binding{b}, testCatalog(t)); err == nil {
		t.Fatal("expected error for disabled action the tool does not declare")
	}
}

func TestDeclarations_StructuredExport(t *testing.T) {
	r, err := Build("agent-1", []*binding.Binding{enabledBinding("bnd-1", "Calendar")}, testCatalog(t))
	if err != nil {
		t.Fatal(err)
	}
	decls := r.Declarations()
	if len(decls) != 2 {
		t.Fatalf("expected 2 declarations, got %d", len(decls))
	}

	var listEvents *Declaration
	for i := range decls {
		if decls[i].Name == "calendar_list_events" {
			listEvents = &decls[i]
		}
	}
	if listEvents == nil {
		t.Fatal("calendar_list_events declaration missing")
	}

	props, ok := listEvents.Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatalf("parameters schema has no properties: %v", listEvents.Parameters)
	}
	timeMin, ok := props["time_min"].(map[string]any)
	if !ok {
		t.Fatal("time_min property missing")
	}
	if timeMin["type"] != "string" || timeMin["format"] != "date-time" {
		t.Fatalf("time_min not exported as date-time string: %v", timeMin)
	}
	required, _ := listEvents.Parameters["required"].([]any)
	if len(required) != 1 || required[0] != "time_min" {
		t.Fatalf("required list wrong: %v", required)
	}
}

type recordingExecutor struct {
	toolName, actionName, bindingID string
	args                            map[string]any
}

func (e *recordingExecutor) Execute(_ context.Context, toolName, actionName, bindingID string, args map[string]any) (any, error) {
	e.toolName, e.actionName, e.bindingID, e.args = toolName, actionName, bindingID, args
	return "ok", nil
}

func TestCallables_RouteOwnBinding(t *testing.T) {
	r, err := Build("agent-1", []*binding.Binding{enabledBinding("bnd-1", "Calendar")}, testCatalog(t))
	if err != nil {
		t.Fatal(err)
	}
	exec := &recordingExecutor{}
	calls := r.Callables(exec)

	// Every callable must carry its own action record, not the last one
	// seen by the factory loop.
	if _, err := calls["calendar_list_events"](context.Background(), map[string]any{"time_min": "2025-12-30T09:00:00Z"}); err != nil {
		t.Fatal(err)
	}
	if exec.actionName != "list_events" || exec.bindingID != "bnd-1" || exec.toolName != "Calendar" {
		t.Fatalf("callable routed wrong triple: %+v", exec)
	}

	if _, err := calls["calendar_create_event"](context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if exec.actionName != "create_event" {
		t.Fatalf("callable routed wrong action: %s", exec.actionName)
	}
}
