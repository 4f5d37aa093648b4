package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lukasbauer/dispatchvoice/internal/dispatch"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// NewCall is the input for CreateCall.
type NewCall struct {
	AgentConfigID string
	DriverName    string
	PhoneNumber   string
	LoadNumber    string
	InitiatedBy   *string
}

// CallFilter narrows ListCalls.
type CallFilter struct {
	LoadNumber string
	Status     dispatch.CallStatus
	Limit      int
	Offset     int
}

// EndedCall is what the platform reports when a call hangs up.
type EndedCall struct {
	Transcript   string
	RecordingURL string
	DurationSec  *int
	EndedAt      time.Time
}

const callColumns = `
	id::text, platform_call_id, agent_configuration_id::text, driver_name, phone_number, load_number,
	status, duration_sec, raw_transcript, recording_url, history, structured_results, post_call_analysis,
	error_message, initiated_by, started_at, ended_at, created_at, updated_at`

func scanCall(row pgx.Row) (*dispatch.Call, error) {
	var (
		c                       dispatch.Call
		status                  string
		history, facts, results []byte
	)
	err := row.Scan(
		&c.ID, &c.PlatformCallID, &c.AgentConfigID, &c.DriverName, &c.PhoneNumber, &c.LoadNumber,
		&status, &c.DurationSec, &c.Transcript, &c.RecordingURL, &history, &facts, &results,
		&c.ErrorMessage, &c.InitiatedBy, &c.StartedAt, &c.EndedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = dispatch.CallStatus(status)

	if len(history) > 0 {
		if err := json.Unmarshal(history, &c.History); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
	}
	c.Facts = dispatch.StructuredResult{}
	if len(facts) > 0 {
		if err := json.Unmarshal(facts, &c.Facts); err != nil {
			return nil, fmt.Errorf("decode structured_results: %w", err)
		}
	}
	if len(results) > 0 {
		var a dispatch.AnalysisResult
		if err := json.Unmarshal(results, &a); err != nil {
			return nil, fmt.Errorf("decode post_call_analysis: %w", err)
		}
		c.Analysis = &a
	}
	return &c, nil
}

// CreateCall inserts a call in the initiated state.
func (s *Store) CreateCall(ctx context.Context, in NewCall) (*dispatch.Call, error) {
	row := s.db.QueryRow(ctx, `
		INSERT INTO calls (agent_configuration_id, driver_name, phone_number, load_number, initiated_by, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+callColumns,
		in.AgentConfigID, in.DriverName, in.PhoneNumber, in.LoadNumber, in.InitiatedBy, string(dispatch.CallInitiated))
	c, err := scanCall(row)
	if err != nil {
		return nil, fmt.Errorf("create call: %w", err)
	}
	return c, nil
}

// GetCall loads a call by its own id.
func (s *Store) GetCall(ctx context.Context, id string) (*dispatch.Call, error) {
	c, err := scanCall(s.db.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE id::text = $1`, id))
	return c, notFound(err)
}

// CallByPlatformID loads a call by the voice platform's call id.
func (s *Store) CallByPlatformID(ctx context.Context, platformCallID string) (*dispatch.Call, error) {
	c, err := scanCall(s.db.QueryRow(ctx, `SELECT `+callColumns+` FROM calls WHERE platform_call_id = $1`, platformCallID))
	return c, notFound(err)
}

// ListCalls returns calls newest first with the total matching count.
func (s *Store) ListCalls(ctx context.Context, f CallFilter) ([]dispatch.Call, int, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var (
		where []string
		args  []any
	)
	if f.LoadNumber != "" {
		args = append(args, f.LoadNumber)
		where = append(where, fmt.Sprintf("load_number = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM calls`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := s.db.Query(ctx, fmt.Sprintf(`
		SELECT %s FROM calls%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, callColumns, clause, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []dispatch.Call{}
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *c)
	}
	return out, total, rows.Err()
}

// MarkCallPlaced records the platform call id once the outbound call is ringing.
func (s *Store) MarkCallPlaced(ctx context.Context, id, platformCallID string, at time.Time) error {
	return s.execOne(ctx, `
		UPDATE calls
		SET platform_call_id = $2, status = $3, started_at = $4, updated_at = now()
		WHERE id::text = $1
	`, id, platformCallID, string(dispatch.CallRinging), at)
}

// MarkCallStarted moves a call to in_progress.
func (s *Store) MarkCallStarted(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, `
		UPDATE calls
		SET status = $2, started_at = COALESCE(started_at, $3), updated_at = now()
		WHERE id::text = $1
	`, id, string(dispatch.CallInProgress), at)
}

// MarkCallEnded stores the platform's end-of-call data and completes the call.
func (s *Store) MarkCallEnded(ctx context.Context, id string, e EndedCall) error {
	return s.execOne(ctx, `
		UPDATE calls
		SET status = $2,
		    raw_transcript = NULLIF($3, ''),
		    recording_url = NULLIF($4, ''),
		    duration_sec = $5,
		    ended_at = $6,
		    updated_at = now()
		WHERE id::text = $1
	`, id, string(dispatch.CallCompleted), e.Transcript, e.RecordingURL, e.DurationSec, e.EndedAt)
}

// MarkCallFailed records a failed call with its reason.
func (s *Store) MarkCallFailed(ctx context.Context, id, message string, at time.Time) error {
	return s.execOne(ctx, `
		UPDATE calls
		SET status = $2, error_message = $3, ended_at = $4, updated_at = now()
		WHERE id::text = $1
	`, id, string(dispatch.CallFailed), message, at)
}

// SaveConversation stores the session history and merges the realtime facts
// over whatever is already recorded.
func (s *Store) SaveConversation(ctx context.Context, callID string, history []dispatch.Turn, facts dispatch.StructuredResult) error {
	if history == nil {
		history = []dispatch.Turn{}
	}
	h, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	f, err := encodeFacts(facts)
	if err != nil {
		return err
	}
	return s.execOne(ctx, `
		UPDATE calls
		SET history = $2::jsonb,
		    structured_results = structured_results || $3::jsonb,
		    updated_at = now()
		WHERE id::text = $1
	`, callID, h, f)
}

// MergeFacts overlays facts onto the call's structured results.
func (s *Store) MergeFacts(ctx context.Context, callID string, facts dispatch.StructuredResult) error {
	f, err := encodeFacts(facts)
	if err != nil {
		return err
	}
	return s.execOne(ctx, `
		UPDATE calls
		SET structured_results = structured_results || $2::jsonb,
		    updated_at = now()
		WHERE id::text = $1
	`, callID, f)
}

// MergePlatformAnalysis stores the platform's own analysis under its own key.
func (s *Store) MergePlatformAnalysis(ctx context.Context, callID string, analysis map[string]any) error {
	b, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encode platform analysis: %w", err)
	}
	return s.execOne(ctx, `
		UPDATE calls
		SET structured_results = structured_results || jsonb_build_object($2::text, $3::jsonb),
		    updated_at = now()
		WHERE id::text = $1
	`, callID, dispatch.KeyPlatformAnalysis, b)
}

// ClaimAnalysis marks the call's post-call analysis as taken. Only the first
// caller gets true.
func (s *Store) ClaimAnalysis(ctx context.Context, callID string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE calls
		SET analysis_claimed_at = now()
		WHERE id::text = $1 AND analysis_claimed_at IS NULL
	`, callID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SaveAnalysis persists the settled facts and the analysis result.
func (s *Store) SaveAnalysis(ctx context.Context, callID string, facts dispatch.StructuredResult, result dispatch.AnalysisResult) error {
	f, err := encodeFacts(facts)
	if err != nil {
		return err
	}
	r, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	return s.execOne(ctx, `
		UPDATE calls
		SET structured_results = structured_results || $2::jsonb,
		    post_call_analysis = $3::jsonb,
		    updated_at = now()
		WHERE id::text = $1
	`, callID, f, r)
}

func encodeFacts(facts dispatch.StructuredResult) ([]byte, error) {
	if facts == nil {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(facts)
	if err != nil {
		return nil, fmt.Errorf("encode structured results: %w", err)
	}
	return b, nil
}

// execOne runs an update that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
