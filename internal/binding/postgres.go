package binding

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/voxlane/actions/internal/authstate"
	"go.uber.org/zap"
)

// rowStore abstracts DB queries for testability.
type rowStore interface {
	LookupBinding(ctx context.Context, bindingID string) (*bindingRow, error)
	LookupByAgent(ctx context.Context, agentID string) ([]*bindingRow, error)
	UpdateCredentials(ctx context.Context, bindingID string, sealed []byte, status string, tokenExpiresAt *time.Time) error
	UpdateAuthStatus(ctx context.Context, bindingID string, status string) error
	PurgeCredentials(ctx context.Context, bindingID string) error
}

type bindingRow struct {
	ID               string
	AgentID          string
	ToolName         string
	Config           string // JSONB as string
	SensitiveConfig  []byte
	DisabledActions  string // JSONB as string
	IsEnabled        bool
	AuthStatus       string
	ConnectionStatus string
	TokenExpiresAt   sql.NullTime
	UpdatedAt        time.Time
}

// sqlRowStore is the real implementation using *sql.DB.
type sqlRowStore struct {
	db *sql.DB
}

const bindingColumns = `id, agent_id, tool_name, config, sensitive_config,
	       disabled_actions, is_enabled, auth_status, connection_status,
	       token_expires_at, updated_at`

func (s *sqlRowStore) LookupBinding(ctx context.Context, bindingID string) (*bindingRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+bindingColumns+`
		FROM agent_tool_bindings
		WHERE id = $1
	`, bindingID)
	return scanBindingRow(row)
}

func (s *sqlRowStore) LookupByAgent(ctx context.Context, agentID string) ([]*bindingRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+bindingColumns+`
		FROM agent_tool_bindings
		WHERE agent_id = $1
		ORDER BY tool_name
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*bindingRow
	for rows.Next() {
		r, err := scanBindingRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlRowStore) UpdateCredentials(ctx context.Context, bindingID string, sealed []byte, status string, tokenExpiresAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_tool_bindings
		SET sensitive_config = $2,
		    auth_status = $3,
		    token_expires_at = $4,
		    connection_status = 'connected',
		    updated_at = now()
		WHERE id = $1
	`, bindingID, sealed, status, tokenExpiresAt)
	return err
}

func (s *sqlRowStore) UpdateAuthStatus(ctx context.Context, bindingID string, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_tool_bindings
		SET auth_status = $2, updated_at = now()
		WHERE id = $1
	`, bindingID, status)
	return err
}

func (s *sqlRowStore) PurgeCredentials(ctx context.Context, bindingID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_tool_bindings
		SET sensitive_config = NULL,
		    auth_status = 'not_authenticated',
		    token_expires_at = NULL,
		    updated_at = now()
		WHERE id = $1
	`, bindingID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBindingRow(row rowScanner) (*bindingRow, error) {
	var r bindingRow
	if err := row.Scan(
		&r.ID, &r.AgentID, &r.ToolName, &r.Config, &r.SensitiveConfig,
		&r.DisabledActions, &r.IsEnabled, &r.AuthStatus, &r.ConnectionStatus,
		&r.TokenExpiresAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &r, nil
}

// PostgresStore loads bindings from the agent_tool_bindings table with a
// stale-while-revalidate cache in front of Get.
type PostgresStore struct {
	store  rowStore
	cache  *Cache
	logger *zap.Logger
}

// PostgresStoreConfig configures the PostgresStore.
type PostgresStoreConfig struct {
	DB       *sql.DB
	CacheTTL time.Duration
	Logger   *zap.Logger
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(cfg PostgresStoreConfig) *PostgresStore {
	ttl := cfg.CacheTTL
	if ttl == 0 {
		ttl = 30 * time.Second
	}
	return &PostgresStore{
		store:  &sqlRowStore{db: cfg.DB},
		cache:  NewCache(ttl),
		logger: cfg.Logger,
	}
}

// newPostgresStoreWithRows creates a store with a custom rowStore (for testing).
func newPostgresStoreWithRows(store rowStore, cacheTTL time.Duration, logger *zap.Logger) *PostgresStore {
	if cacheTTL == 0 {
		cacheTTL = 30 * time.Second
	}
	return &PostgresStore{
		store:  store,
		cache:  NewCache(cacheTTL),
		logger: logger,
	}
}

func (s *PostgresStore) Get(ctx context.Context, bindingID string) (*Binding, error) {
	cacheResult := s.cache.Get(bindingID)
	if cacheResult.Hit {
		if cacheResult.NeedsRefresh {
			go s.refreshInBackground(bindingID)
		}
		return cacheResult.Binding, nil
	}

	b, err := s.fetch(ctx, bindingID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.cache.Set(bindingID, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("binding.Get: %w", err)
	}

	s.cache.Set(bindingID, b)
	return b, nil
}

func (s *PostgresStore) ListByAgent(ctx context.Context, agentID string) ([]*Binding, error) {
	rows, err := s.store.LookupByAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("binding.ListByAgent: %w", err)
	}
	out := make([]*Binding, 0, len(rows))
	for _, r := range rows {
		b, err := parseBindingRow(r)
		if err != nil {
			return nil, fmt.Errorf("binding.ListByAgent: %w", err)
		}
		out = append(out, b)
	}
	return out, nil
}

func (s *PostgresStore) UpdateCredentials(ctx context.Context, bindingID string, sealed []byte, status authstate.Status, tokenExpiresAt *time.Time) error {
	if err := s.store.UpdateCredentials(ctx, bindingID, sealed, string(status), tokenExpiresAt); err != nil {
		return fmt.Errorf("binding.UpdateCredentials: %w", err)
	}
	s.cache.Delete(bindingID)
	return nil
}

func (s *PostgresStore) SetAuthStatus(ctx context.Context, bindingID string, status authstate.Status) error {
	if err := s.store.UpdateAuthStatus(ctx, bindingID, string(status)); err != nil {
		return fmt.Errorf("binding.SetAuthStatus: %w", err)
	}
	s.cache.Delete(bindingID)
	return nil
}

func (s *PostgresStore) Disconnect(ctx context.Context, bindingID string) error {
	if err := s.store.PurgeCredentials(ctx, bindingID); err != nil {
		return fmt.Errorf("binding.Disconnect: %w", err)
	}
	s.cache.Delete(bindingID)
	return nil
}

func (s *PostgresStore) fetch(ctx context.Context, bindingID string) (*Binding, error) {
	row, err := s.store.LookupBinding(ctx, bindingID)
	if err != nil {
		return nil, err
	}
	return parseBindingRow(row)
}

func (s *PostgresStore) refreshInBackground(bindingID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	b, err := s.fetch(ctx, bindingID)
	if err != nil {
		if err == sql.ErrNoRows {
			s.cache.Set(bindingID, nil)
			return
		}
		s.logger.Warn("background binding refresh failed",
			zap.String("binding_id", bindingID),
			zap.Error(err),
		)
		return
	}
	s.cache.Set(bindingID, b)
}

func parseBindingRow(row *bindingRow) (*Binding, error) {
	b := &Binding{
		ID:               row.ID,
		AgentID:          row.AgentID,
		ToolName:         row.ToolName,
		SensitiveConfig:  row.SensitiveConfig,
		IsEnabled:        row.IsEnabled,
		AuthStatus:       authstate.Status(row.AuthStatus),
		ConnectionStatus: authstate.ConnectionStatus(row.ConnectionStatus),
		UpdatedAt:        row.UpdatedAt,
	}

	if row.TokenExpiresAt.Valid {
		t := row.TokenExpiresAt.Time
		b.TokenExpiresAt = &t
	}

	if row.Config != "" && row.Config != "{}" {
		if err := json.Unmarshal([]byte(row.Config), &b.Config); err != nil {
			return nil, fmt.Errorf("parseBindingRow: config: %w", err)
		}
	}

	if row.DisabledActions != "" && row.DisabledActions != "[]" {
		if err := json.Unmarshal([]byte(row.DisabledActions), &b.DisabledActions); err != nil {
			return nil, fmt.Errorf("parseBindingRow: disabled_actions: %w", err)
		}
	}

	return b, nil
}
