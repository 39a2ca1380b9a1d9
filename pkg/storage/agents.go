package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Agent is a member of the sales roster. Only active agents receive leads.
type Agent struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Mobile       string    `json:"mobile"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// NewAgent carries the fields needed to register an agent.
type NewAgent struct {
	Name         string
	Email        string
	Mobile       string
	PasswordHash string
}

// AgentUpdate is a partial update; nil fields are left unchanged.
type AgentUpdate struct {
	Name         *string
	Email        *string
	Mobile       *string
	PasswordHash *string
	IsActive     *bool
}

const agentColumns = `id, name, email, mobile, password_hash, is_active, created_at, updated_at`

// CreateAgent registers an active agent. A taken email returns ErrDuplicate.
func (s *Store) CreateAgent(ctx context.Context, in NewAgent) (*Agent, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	now := s.now()
	agent := &Agent{
		ID:           newID(),
		Name:         strings.TrimSpace(in.Name),
		Email:        normalizeEmail(in.Email),
		Mobile:       strings.TrimSpace(in.Mobile),
		PasswordHash: in.PasswordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (`+agentColumns+`)
		VALUES (?, ?, ?, ?, ?, 1, ?, ?)
	`, agent.ID, agent.Name, agent.Email, agent.Mobile, agent.PasswordHash, agent.CreatedAt, agent.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("agent %s: %w", agent.Email, ErrDuplicate)
		}
		return nil, fmt.Errorf("insert agent: %w", err)
	}
	return agent, nil
}

// GetAgent loads one agent by id.
func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = ?`, strings.TrimSpace(id))
	agent, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load agent: %w", err)
	}
	return agent, nil
}

// ListAgents returns every agent, newest first.
func (s *Store) ListAgents(ctx context.Context) ([]Agent, error) {
	return s.queryAgents(ctx, `SELECT `+agentColumns+` FROM agents ORDER BY created_at DESC, id DESC`)
}

// ListEligibleAgents returns up to limit active agents, newest first. This is
// the roster order used for distribution. A limit <= 0 means no cap.
func (s *Store) ListEligibleAgents(ctx context.Context, limit int) ([]Agent, error) {
	if limit <= 0 {
		limit = -1
	}
	return s.queryAgents(ctx, `
		SELECT `+agentColumns+` FROM agents
		WHERE is_active = 1
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
}

func (s *Store) queryAgents(ctx context.Context, query string, args ...any) ([]Agent, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query agents: %w", err)
	}
	defer rows.Close()

	agents := []Agent{}
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent: %w", err)
		}
		agents = append(agents, *agent)
	}
	return agents, rows.Err()
}

// UpdateAgent applies a partial update and returns the stored result.
func (s *Store) UpdateAgent(ctx context.Context, id string, upd AgentUpdate) (*Agent, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	id = strings.TrimSpace(id)

	var (
		sets []string
		args []any
	)
	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, strings.TrimSpace(*upd.Name))
	}
	if upd.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, normalizeEmail(*upd.Email))
	}
	if upd.Mobile != nil {
		sets = append(sets, "mobile = ?")
		args = append(args, strings.TrimSpace(*upd.Mobile))
	}
	if upd.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *upd.PasswordHash)
	}
	if upd.IsActive != nil {
		sets = append(sets, "is_active = ?")
		args = append(args, *upd.IsActive)
	}
	if len(sets) == 0 {
		return s.GetAgent(ctx, id)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, s.now(), id)

	res, err := s.db.ExecContext(ctx, `UPDATE agents SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("agent email: %w", ErrDuplicate)
		}
		return nil, fmt.Errorf("update agent: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}
	return s.GetAgent(ctx, id)
}

// DeleteAgent removes an agent. Past distributions keep the agent's name.
func (s *Store) DeleteAgent(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountActiveAgents reports how many agents are eligible for distribution.
func (s *Store) CountActiveAgents(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, ErrStoreClosed
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agents WHERE is_active = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count agents: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgent(row rowScanner) (*Agent, error) {
	var a Agent
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Mobile, &a.PasswordHash, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
