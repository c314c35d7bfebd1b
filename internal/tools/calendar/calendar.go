// Package calendar is the built-in calendar integration. It speaks a plain
// REST calendar API authorized with an OAuth2 bearer token.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/voxlane/actions/internal/schema"
	"github.com/voxlane/actions/internal/tool"
)

const providerName = "calendar"

// Config configures the integration's HTTP client.
type Config struct {
	// BaseURL overrides the provider endpoint. The per-binding config may
	// override it again via the base_url setting.
	BaseURL    string
	HTTPClient *http.Client
}

type client struct {
	http    *http.Client
	baseURL string
}

func floatPtr(f float64) *float64 { return &f }

// New builds the calendar tool.
func New(cfg Config) *tool.Base {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	c := &client{http: httpClient, baseURL: cfg.BaseURL}

	return tool.MustNew(tool.Definition{
		Name:        "Calendar",
		Description: "Read and manage events on the user's connected calendar.",
		ConfigSchema: []schema.Parameter{
			{Name: "calendar_id", Type: schema.TypeString, Description: "Calendar to operate on.", Default: "primary"},
			{Name: "base_url", Type: schema.TypeString, Description: "Provider endpoint override."},
		},
		Auth: tool.AuthRequirements{
			Required: true,
			Type:     tool.AuthOAuth2,
			Params: map[string]string{
				"scopes": "calendar.events.read calendar.events.write",
			},
		},
		Actions: []schema.Action{
			{
				Name:        "list_events",
				Description: "List events between two points in time.",
				Parameters: []schema.Parameter{
					{Name: "time_min", Type: schema.TypeDatetime, Required: true, Description: "Earliest event start to include."},
					{Name: "time_max", Type: schema.TypeDatetime, Description: "Latest event start to include."},
					{Name: "max_results", Type: schema.TypeInteger, Default: float64(10), MinValue: floatPtr(1), MaxValue: floatPtr(100), Description: "Maximum number of events to return."},
				},
				Returns: "A list of events with id, title, start, and end.",
			},
			{
				Name:        "create_event",
				Description: "Create a new event.",
				Parameters: []schema.Parameter{
					{Name: "title", Type: schema.TypeString, Required: true, Description: "Event title."},
					{Name: "start", Type: schema.TypeDatetime, Required: true, Description: "Event start."},
					{Name: "end", Type: schema.TypeDatetime, Description: "Event end; defaults to provider behavior."},
					{Name: "visibility", Type: schema.TypeString, Enum: []any{"default", "public", "private"}, Default: "default", Description: "Event visibility."},
				},
				Returns: "The created event's id.",
			},
			{
				Name:        "delete_event",
				Description: "Delete an event by id.",
				Parameters: []schema.Parameter{
					{Name: "event_id", Type: schema.TypeString, Required: true, Description: "Event identifier."},
				},
				Returns: "Confirmation of deletion.",
			},
		},
	}, tool.HandlerMap{
		"list_events":  c.listEvents,
		"create_event": c.createEvent,
		"delete_event": c.deleteEvent,
	})
}

// Event is one calendar entry as returned by the provider.
type Event struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

func (c *client) resolveBase(inv tool.Invocation) string {
	if override, ok := inv.Config["base_url"].(string); ok && override != "" {
		return override
	}
	return c.baseURL
}

func calendarID(inv tool.Invocation) string {
	if id, ok := inv.Config["calendar_id"].(string); ok && id != "" {
		return id
	}
	return "primary"
}

func (c *client) listEvents(ctx context.Context, inv tool.Invocation) (any, error) {
	q := url.Values{}
	q.Set("timeMin", inv.Args["time_min"].(string))
	if tm, ok := inv.Args["time_max"].(string); ok {
		q.Set("timeMax", tm)
	}
	if mr, ok := inv.Args["max_results"].(float64); ok {
		q.Set("maxResults", strconv.Itoa(int(mr)))
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s", c.resolveBase(inv), url.PathEscape(calendarID(inv)), q.Encode())
	var resp struct {
		Events []Event `json:"events"`
	}
	if err := c.do(ctx, inv, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *client) createEvent(ctx context.Context, inv tool.Invocation) (any, error) {
	body := map[string]any{
		"title": inv.Args["title"],
		"start": inv.Args["start"],
	}
	if end, ok := inv.Args["end"]; ok {
		body["end"] = end
	}
	if vis, ok := inv.Args["visibility"]; ok {
		body["visibility"] = vis
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events", c.resolveBase(inv), url.PathEscape(calendarID(inv)))
	var resp Event
	if err := c.do(ctx, inv, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *client) deleteEvent(ctx context.Context, inv tool.Invocation) (any, error) {
	endpoint := fmt.Sprintf("%s/calendars/%s/events/%s",
		c.resolveBase(inv), url.PathEscape(calendarID(inv)), url.PathEscape(inv.Args["event_id"].(string)))
	if err := c.do(ctx, inv, http.MethodDelete, endpoint, nil, nil); err != nil {
		return nil, err
	}
	return map[string]any{"deleted": true}, nil
}

// do performs one provider round trip, wrapping every failure in a
// ProviderError so the engine can classify it.
func (c *client) do(ctx context.Context, inv tool.Invocation, method, endpoint string, body any, out any) error {
	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &tool.ProviderError{Provider: providerName, Err: err}
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return &tool.ProviderError{Provider: providerName, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+inv.Secrets["access_token"])
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &tool.ProviderError{Provider: providerName, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &tool.ProviderError{
			Provider:     providerName,
			StatusCode:   resp.StatusCode,
			Unauthorized: true,
			Err:          fmt.Errorf("credential rejected"),
		}
	case resp.StatusCode >= 400:
		return &tool.ProviderError{
			Provider:   providerName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("request failed"),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &tool.ProviderError{Provider: providerName, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return nil
}
