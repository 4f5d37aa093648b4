package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
)

// NewAgentConfig is the input for CreateAgentConfig.
type NewAgentConfig struct {
	Name            string  `json:"name"`
	Description     *string `json:"description,omitempty"`
	SystemPrompt    string  `json:"system_prompt"`
	InitialMessage  *string `json:"initial_message,omitempty"`
	ScenarioType    *string `json:"scenario_type,omitempty"`
	PlatformAgentID *string `json:"platform_agent_id,omitempty"`
}

const agentColumns = `id::text, name, system_prompt, initial_message, scenario_type, platform_agent_id, is_active, created_at`

func scanAgent(row pgx.Row) (*dispatch.AgentConfig, error) {
	var a dispatch.AgentConfig
	err := row.Scan(&a.ID, &a.Name, &a.SystemPrompt, &a.InitialMessage, &a.ScenarioType, &a.PlatformAgentID, &a.Active, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AgentConfig loads one agent configuration.
func (s *Store) AgentConfig(ctx context.Context, id string) (*dispatch.AgentConfig, error) {
	a, err := scanAgent(s.db.QueryRow(ctx, `SELECT `+agentColumns+` FROM agent_configurations WHERE id::text = $1`, id))
	return a, notFound(err)
}

// ListAgentConfigs returns every configuration, active ones first.
func (s *Store) ListAgentConfigs(ctx context.Context) ([]dispatch.AgentConfig, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+agentColumns+`
		FROM agent_configurations
		ORDER BY is_active DESC, created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []dispatch.AgentConfig{}
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// CreateAgentConfig inserts an active agent configuration.
func (s *Store) CreateAgentConfig(ctx context.Context, in NewAgentConfig) (*dispatch.AgentConfig, error) {
	a, err := scanAgent(s.db.QueryRow(ctx, `
		INSERT INTO agent_configurations (name, description, system_prompt, initial_message, scenario_type, platform_agent_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+agentColumns,
		in.Name, in.Description, in.SystemPrompt, in.InitialMessage, in.ScenarioType, in.PlatformAgentID))
	if err != nil {
		return nil, fmt.Errorf("create agent config: %w", err)
	}
	return a, nil
}

// SetAgentActive enables or disables a configuration.
func (s *Store) SetAgentActive(ctx context.Context, id string, active bool) error {
	return s.execOne(ctx, `
		UPDATE agent_configurations SET is_active = $2, updated_at = now() WHERE id::text = $1
	`, id, active)
}

// AgentUpdate changes the fields that are set and leaves the rest alone.
type AgentUpdate struct {
	Name            *string `json:"name,omitempty"`
	Description     *string `json:"description,omitempty"`
	SystemPrompt    *string `json:"system_prompt,omitempty"`
	InitialMessage  *string `json:"initial_message,omitempty"`
	ScenarioType    *string `json:"scenario_type,omitempty"`
	PlatformAgentID *string `json:"platform_agent_id,omitempty"`
	Active          *bool   `json:"is_active,omitempty"`
}

// UpdateAgentConfig applies u and returns the updated configuration.
func (s *Store) UpdateAgentConfig(ctx context.Context, id string, u AgentUpdate) (*dispatch.AgentConfig, error) {
	a, err := scanAgent(s.db.QueryRow(ctx, `
		UPDATE agent_configurations
		SET name              = coalesce($2, name),
		    description       = coalesce($3, description),
		    system_prompt     = coalesce($4, system_prompt),
		    initial_message   = coalesce($5, initial_message),
		    scenario_type     = coalesce($6, scenario_type),
		    platform_agent_id = coalesce($7, platform_agent_id),
		    is_active         = coalesce($8, is_active),
		    updated_at        = now()
		WHERE id::text = $1
		RETURNING `+agentColumns,
		id, u.Name, u.Description, u.SystemPrompt, u.InitialMessage, u.ScenarioType, u.PlatformAgentID, u.Active))
	if err != nil {
		return nil, fmt.Errorf("update agent config: %w", notFound(err))
	}
	return a, nil
}
