package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophupload/internal/common"
	"github.com/dmitrijs2005/gophupload/internal/dbx"
)

// PostgresRepository implements Repository over database/sql with the pgx
// driver.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO upload_sessions (id, subject, file_name, file_type, total_chunks)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query, s.ID, s.Subject, s.FileName, s.FileType, s.TotalChunks); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Session, error) {
	query := `
		SELECT s.id, s.subject, s.file_name, s.file_type, s.total_chunks, s.created_at, s.updated_at,
			(SELECT count(*) FROM upload_chunks c WHERE c.session_id = s.id)
		FROM upload_sessions s WHERE s.id = $1
	`
	s := &Session{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&s.ID, &s.Subject, &s.FileName, &s.FileType, &s.TotalChunks, &s.CreatedAt, &s.UpdatedAt, &s.Received)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return s, nil
}

// AddChunk records the index and touches the session in one transaction.
func (r *PostgresRepository) AddChunk(ctx context.Context, id string, index int) (int, error) {
	return dbx.InTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) (int, error) {
		res, err := tx.ExecContext(ctx, `UPDATE upload_sessions SET updated_at = now() WHERE id = $1`, id)
		if err != nil {
			return 0, fmt.Errorf("touch session: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected error: %w", err)
		}
		if n == 0 {
			return 0, fmt.Errorf("session %s: %w", id, common.ErrorNotFound)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO upload_chunks (session_id, chunk_index) VALUES ($1, $2)
			ON CONFLICT (session_id, chunk_index) DO NOTHING
		`, id, index); err != nil {
			return 0, fmt.Errorf("insert chunk: %w", err)
		}

		var received int
		err = tx.QueryRowContext(ctx, `SELECT count(*) FROM upload_chunks WHERE session_id = $1`, id).Scan(&received)
		return received, err
	})
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM upload_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Expired(ctx context.Context, before time.Time) ([]*Session, error) {
	query := `
		SELECT id, subject, file_name, file_type, total_chunks, created_at, updated_at
		FROM upload_sessions WHERE updated_at < $1
	`
	rows, err := r.db.QueryContext(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("select expired sessions: %w", err)
	}
	defer rows.Close()

	var result []*Session
	for rows.Next() {
		s := &Session{}
		if err := rows.Scan(&s.ID, &s.Subject, &s.FileName, &s.FileType, &s.TotalChunks, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
