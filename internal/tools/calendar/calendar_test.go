package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/voxlane/actions/internal/tool"
)

func TestListEvents(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(map[string]any{
			"events": []map[string]any{
				{"id": "evt-1", "title": "Standup", "start": "2026-03-01T09:00:00Z"},
			},
		})
	}))
	defer srv.Close()

	cal := New(Config{BaseURL: srv.URL})
	res, err := cal.Execute(context.Background(), tool.Invocation{
		Action:  "list_events",
		Config:  map[string]any{"calendar_id": "work"},
		Secrets: map[string]string{"access_token": "tok-abc"},
		Args: map[string]any{
			"time_min":    "2026-03-01T00:00:00Z",
			"max_results": float64(25),
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	if gotAuth != "Bearer tok-abc" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if gotPath != "/calendars/work/events" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotQuery != "maxResults=25&timeMin=2026-03-01T00%3A00%3A00Z" {
		t.Fatalf("query = %q", gotQuery)
	}
	events, ok := res.([]Event)
	if !ok || len(events) != 1 || events[0].ID != "evt-1" {
		t.Fatalf("unexpected result %#v", res)
	}
}

func TestCreateEvent(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(Event{ID: "evt-new"})
	}))
	defer srv.Close()

	cal := New(Config{BaseURL: srv.URL})
	res, err := cal.Execute(context.Background(), tool.Invocation{
		Action:  "create_event",
		Secrets: map[string]string{"access_token": "tok"},
		Args: map[string]any{
			"title":      "Review",
			"start":      "2026-03-02T14:00:00Z",
			"visibility": "private",
		},
	})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotBody["title"] != "Review" || gotBody["visibility"] != "private" {
		t.Fatalf("request body = %v", gotBody)
	}
	if _, ok := gotBody["end"]; ok {
		t.Fatal("end should be omitted when not provided")
	}
	if ev := res.(Event); ev.ID != "evt-new" {
		t.Fatalf("result = %#v", ev)
	}
}

func TestDeleteEvent(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cal := New(Config{BaseURL: srv.URL})
	if _, err := cal.Execute(context.Background(), tool.Invocation{
		Action:  "delete_event",
		Secrets: map[string]string{"access_token": "tok"},
		Args:    map[string]any{"event_id": "evt-9"},
	}); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gotMethod != http.MethodDelete || gotPath != "/calendars/primary/events/evt-9" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
}

func TestUnauthorizedMapsToProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cal := New(Config{BaseURL: srv.URL})
	_, err := cal.Execute(context.Background(), tool.Invocation{
		Action:  "list_events",
		Secrets: map[string]string{"access_token": "stale"},
		Args:    map[string]any{"time_min": "2026-03-01T00:00:00Z"},
	})

	var pe *tool.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("want ProviderError, got %v", err)
	}
	if !pe.Unauthorized || pe.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unexpected provider error %#v", pe)
	}
}

func TestServerErrorIsNotUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cal := New(Config{BaseURL: srv.URL})
	_, err := cal.Execute(context.Background(), tool.Invocation{
		Action:  "list_events",
		Secrets: map[string]string{"access_token": "tok"},
		Args:    map[string]any{"time_min": "2026-03-01T00:00:00Z"},
	})

	var pe *tool.ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("want ProviderError, got %v", err)
	}
	if pe.Unauthorized {
		t.Fatal("502 must not be classified as unauthorized")
	}
	if pe.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d", pe.StatusCode)
	}
}

func TestBindingConfigOverridesBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"events": []any{}})
	}))
	defer srv.Close()

	cal := New(Config{BaseURL: "http://unreachable.invalid"})
	_, err := cal.Execute(context.Background(), tool.Invocation{
		Action:  "list_events",
		Config:  map[string]any{"base_url": srv.URL},
		Secrets: map[string]string{"access_token": "tok"},
		Args:    map[string]any{"time_min": "2026-03-01T00:00:00Z"},
	})
	if err != nil {
		t.Fatalf("execute with base_url override: %v", err)
	}
}
