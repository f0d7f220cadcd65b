package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sourcechat/sourcechat/engine/domain"
)

// CreateSource inserts a new source in pending status and returns it
// with its assigned id.
func (s *Store) CreateSource(ctx context.Context, src domain.Source) (domain.Source, error) {
	headers, err := json.Marshal(src.Headers)
	if err != nil {
		return domain.Source{}, fmt.Errorf("repo: encode headers: %w", err)
	}
	now := time.Now().UTC()
	src.Status = domain.StatusPending
	src.CreatedAt = now
	src.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (owner_id, kind, name, agent_role, api_url, api_key, headers,
			data_path, pdf_path, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.OwnerID, string(src.Kind), src.Name, src.AgentRole, src.APIURL, src.APIKey,
		string(headers), src.DataPath, src.PDFPath, string(src.Status), now, now)
	if err != nil {
		return domain.Source{}, fmt.Errorf("repo: create source: %w", err)
	}
	src.ID, err = res.LastInsertId()
	if err != nil {
		return domain.Source{}, fmt.Errorf("repo: create source: %w", err)
	}
	return src, nil
}

const sourceColumns = `id, owner_id, kind, name, agent_role, api_url, api_key, headers,
	data_path, pdf_path, status, document_count, error_message, last_synced, created_at, updated_at`

func scanSource(row interface{ Scan(...any) error }) (domain.Source, error) {
	var src domain.Source
	var kind, status, headers string
	var lastSynced sql.NullTime
	err := row.Scan(&src.ID, &src.OwnerID, &kind, &src.Name, &src.AgentRole,
		&src.APIURL, &src.APIKey, &headers, &src.DataPath, &src.PDFPath,
		&status, &src.DocumentCount, &src.ErrorMessage, &lastSynced,
		&src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		return domain.Source{}, err
	}
	src.Kind = domain.SourceKind(kind)
	src.Status = domain.SourceStatus(status)
	if lastSynced.Valid {
		t := lastSynced.Time
		src.LastSynced = &t
	}
	if err := json.Unmarshal([]byte(headers), &src.Headers); err != nil {
		return domain.Source{}, fmt.Errorf("repo: decode headers: %w", err)
	}
	return src, nil
}

// GetSource returns the source only if it belongs to ownerID.
func (s *Store) GetSource(ctx context.Context, id, ownerID int64) (domain.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ? AND owner_id = ?`, id, ownerID)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, ErrNotFound
	}
	if err != nil {
		return domain.Source{}, fmt.Errorf("repo: get source %d: %w", id, err)
	}
	return src, nil
}

// GetSourceAnyOwner returns the source regardless of owner. The ingest
// worker uses it to resolve job ids.
func (s *Store) GetSourceAnyOwner(ctx context.Context, id int64) (domain.Source, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Source{}, ErrNotFound
	}
	if err != nil {
		return domain.Source{}, fmt.Errorf("repo: get source %d: %w", id, err)
	}
	return src, nil
}

// ListSources returns the owner's sources, newest first.
func (s *Store) ListSources(ctx context.Context, ownerID int64) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("repo: list sources: %w", err)
	}
	defer rows.Close()

	sources := []domain.Source{}
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("repo: list sources: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// DeleteSource removes the owner's source; sessions and messages
// cascade.
func (s *Store) DeleteSource(ctx context.Context, id, ownerID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sources WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("repo: delete source %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repo: delete source %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkIngesting moves the source into ingesting status and clears any
// previous error.
func (s *Store) MarkIngesting(ctx context.Context, id int64) error {
	return s.setStatus(ctx, id, `
		UPDATE sources SET status = ?, error_message = '', updated_at = ? WHERE id = ?`,
		string(domain.StatusIngesting), time.Now().UTC(), id)
}

// MarkReady records a successful ingest: status, document count, and
// sync time.
func (s *Store) MarkReady(ctx context.Context, id int64, count int, when time.Time) error {
	return s.setStatus(ctx, id, `
		UPDATE sources SET status = ?, document_count = ?, error_message = '', last_synced = ?, updated_at = ?
		WHERE id = ?`,
		string(domain.StatusReady), count, when, time.Now().UTC(), id)
}

// MarkError records a failed ingest. The document count is left as it
// was, so a previously ready source keeps reporting its last good count.
func (s *Store) MarkError(ctx context.Context, id int64, msg string) error {
	return s.setStatus(ctx, id, `
		UPDATE sources SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(domain.StatusError), msg, time.Now().UTC(), id)
}

func (s *Store) setStatus(ctx context.Context, id int64, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("repo: update source %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repo: update source %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
