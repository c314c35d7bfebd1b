// Package email is the built-in email integration, authorized with a
// long-lived provider API key.
package email

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

const providerName = "email"

// Config configures the integration's HTTP client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
}

type client struct {
	http    *http.Client
	baseURL string
}

func floatPtr(f float64) *float64 { return &f }

// New builds the email tool.
func New(cfg Config) *tool.Base {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	c := &client{http: httpClient, baseURL: cfg.BaseURL}

	return tool.MustNew(tool.Definition{
		Name:        "Email",
		Description: "Send mail and read threads from the user's connected mailbox.",
		ConfigSchema: []schema.Parameter{
			{Name: "from_address", Type: schema.TypeString, Description: "Sender address for outgoing mail."},
			{Name: "base_url", Type: schema.TypeString, Description: "Provider endpoint override."},
		},
		Auth: tool.AuthRequirements{
			Required: true,
			Type:     tool.AuthAPIKey,
			Params: map[string]string{
				"key_hint": "Provider API key with mail.send and mail.read grants.",
			},
		},
		Actions: []schema.Action{
			{
				Name:        "send_message",
				Description: "Send an email message.",
				Parameters: []schema.Parameter{
					{Name: "to", Type: schema.TypeString, Required: true, Description: "Recipient address."},
					{Name: "subject", Type: schema.TypeString, Required: true, Description: "Message subject."},
					{Name: "body", Type: schema.TypeString, Required: true, Description: "Plain-text message body."},
				},
				Returns: "The provider's message id.",
			},
			{
				Name:        "list_threads",
				Description: "List recent threads in a mailbox folder.",
				Parameters: []schema.Parameter{
					{Name: "folder", Type: schema.TypeString, Enum: []any{"inbox", "sent", "archive"}, Default: "inbox", Description: "Folder to list."},
					{Name: "limit", Type: schema.TypeInteger, Default: float64(20), MinValue: floatPtr(1), MaxValue: floatPtr(100), Description: "Maximum number of threads."},
				},
				Returns: "A list of threads with id, subject, and last activity time.",
			},
		},
	}, tool.HandlerMap{
		"send_message": c.sendMessage,
		"list_threads": c.listThreads,
	})
}

// Thread is one mailbox thread as returned by the provider.
type Thread struct {
	ID           string `json:"id"`
	Subject      string `json:"subject"`
	LastActivity string `json:"last_activity"`
}

func (c *client) resolveBase(inv tool.Invocation) string {
	if override, ok := inv.Config["base_url"].(string); ok && override != "" {
		return override
	}
	return c.baseURL
}

func (c *client) sendMessage(ctx context.Context, inv tool.Invocation) (any, error) {
	body := map[string]any{
		"to":      inv.Args["to"],
		"subject": inv.Args["subject"],
		"body":    inv.Args["body"],
	}
	if from, ok := inv.Config["from_address"].(string); ok && from != "" {
		body["from"] = from
	}

	var resp struct {
		MessageID string `json:"message_id"`
	}
	if err := c.do(ctx, inv, http.MethodPost, c.resolveBase(inv)+"/messages", body, &resp); err != nil {
		return nil, err
	}
	return map[string]any{"message_id": resp.MessageID}, nil
}

func (c *client) listThreads(ctx context.Context, inv tool.Invocation) (any, error) {
	q := url.Values{}
	q.Set("folder", inv.Args["folder"].(string))
	if limit, ok := inv.Args["limit"].(float64); ok {
		q.Set("limit", strconv.Itoa(int(limit)))
	}

	var resp struct {
		Threads []Thread `json:"threads"`
	}
	if err := c.do(ctx, inv, http.MethodGet, c.resolveBase(inv)+"/threads?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Threads, nil
}

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
	req.Header.Set("X-Api-Key", inv.Secrets["api_key"])
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
			Err:          fmt.Errorf("api key rejected"),
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
