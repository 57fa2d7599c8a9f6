package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/subtract0/arbiter/internal/core/domain"
)

// QuestionRepo persists review-queue questions.
type QuestionRepo struct {
	db *DB
}

func NewQuestionRepo(db *DB) *QuestionRepo { return &QuestionRepo{db: db} }

// questionRow mirrors the questions table for sqlx scanning.
type questionRow struct {
	ID                  int64           `db:"id"`
	CorrelationID       string          `db:"correlation_id"`
	Text                string          `db:"question_text"`
	Type                string          `db:"question_type"`
	PatternContext      []byte          `db:"pattern_context"`
	SuggestedAction     string          `db:"suggested_action"`
	Priority            int             `db:"priority"`
	CreatedAt           time.Time       `db:"created_at"`
	ExpiresAt           time.Time       `db:"expires_at"`
	Status              string          `db:"status"`
	ResponseType        sql.NullString  `db:"response_type"`
	AnsweredAt          sql.NullTime    `db:"answered_at"`
	ResponseTimeSeconds sql.NullFloat64 `db:"response_time_seconds"`
}

func (row *questionRow) toDomain() (*domain.Question, error) {
	q := &domain.Question{
		ID:              row.ID,
		CorrelationID:   row.CorrelationID,
		Text:            row.Text,
		Type:            domain.QuestionType(row.Type),
		SuggestedAction: row.SuggestedAction,
		Priority:        row.Priority,
		CreatedAt:       row.CreatedAt,
		ExpiresAt:       row.ExpiresAt,
		Status:          domain.QuestionStatus(row.Status),
	}
	if len(row.PatternContext) > 0 {
		if err := json.Unmarshal(row.PatternContext, &q.PatternContext); err != nil {
			return nil, fmt.Errorf("decode pattern context for question %d: %w", row.ID, err)
		}
	}
	if row.ResponseType.Valid {
		q.ResponseType = domain.ResponseType(row.ResponseType.String)
	}
	if row.AnsweredAt.Valid {
		t := row.AnsweredAt.Time
		q.AnsweredAt = &t
	}
	if row.ResponseTimeSeconds.Valid {
		v := row.ResponseTimeSeconds.Float64
		q.ResponseTimeSeconds = &v
	}
	return q, nil
}

const questionColumns = `id, correlation_id, question_text, question_type, pattern_context,
	suggested_action, priority, created_at, expires_at, status, response_type,
	answered_at, response_time_seconds`

func (r *QuestionRepo) Insert(ctx context.Context, q *domain.Question) (int64, error) {
	patternCtx, err := json.Marshal(q.PatternContext)
	if err != nil {
		return 0, fmt.Errorf("encode pattern context: %w", err)
	}

	query := `
		INSERT INTO questions (correlation_id, question_text, question_type, pattern_context,
			suggested_action, priority, created_at, expires_at, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`
	var id int64
	err = r.db.QueryRowContext(ctx, query,
		q.CorrelationID, q.Text, q.Type, patternCtx, q.SuggestedAction,
		q.Priority, q.CreatedAt, q.ExpiresAt, q.Status).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	return id, nil
}

func (r *QuestionRepo) GetByID(ctx context.Context, id int64) (*domain.Question, error) {
	var row questionRow
	query := fmt.Sprintf(`SELECT %s FROM questions WHERE id = $1`, questionColumns)
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question %d: %w", id, err)
	}
	return row.toDomain()
}

func (r *QuestionRepo) GetByCorrelation(ctx context.Context, correlationID string) (*domain.Question, error) {
	var row questionRow
	query := fmt.Sprintf(`
		SELECT %s FROM questions
		WHERE correlation_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, questionColumns)
	err := r.db.GetContext(ctx, &row, query, correlationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question by correlation %s: %w", correlationID, err)
	}
	return row.toDomain()
}

func (r *QuestionRepo) ListPending(ctx context.Context, limit int, now time.Time) ([]*domain.Question, error) {
	var rows []questionRow
	query := fmt.Sprintf(`
		SELECT %s FROM questions
		WHERE status = 'pending' AND expires_at > $1
		ORDER BY priority DESC, created_at ASC
		LIMIT $2
	`, questionColumns)
	if err := r.db.SelectContext(ctx, &rows, query, now, limit); err != nil {
		return nil, fmt.Errorf("list pending questions: %w", err)
	}

	questions := make([]*domain.Question, 0, len(rows))
	for i := range rows {
		q, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func (r *QuestionRepo) MarkAnswered(ctx context.Context, id int64, ans domain.Answer) error {
	// Answering wins over expiry: the predicate allows the pending->answered
	// and expired->answered transitions, but never re-answers.
	query := `
		UPDATE questions
		SET status = 'answered', response_type = $2, answered_at = $3, response_time_seconds = $4
		WHERE id = $1 AND status <> 'answered'
	`
	res, err := r.db.ExecContext(ctx, query, id, ans.Type, ans.AnsweredAt, ans.ResponseTimeSeconds)
	if err != nil {
		return fmt.Errorf("mark question %d answered: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark question %d answered: %w", id, err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM questions WHERE id = $1)`, id); err != nil {
			return fmt.Errorf("mark question %d answered: %w", id, err)
		}
		if !exists {
			return domain.ErrQuestionNotFound
		}
		return domain.ErrAlreadyAnswered
	}
	return nil
}

func (r *QuestionRepo) ExpireOld(ctx context.Context, now time.Time) (int, error) {
	query := `
		UPDATE questions SET status = 'expired'
		WHERE status = 'pending' AND expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("expire questions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expire questions: %w", err)
	}
	return int(affected), nil
}

func (r *QuestionRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	query := `DELETE FROM questions WHERE status = 'expired' AND created_at < $1`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired questions: %w", err)
	}
	return res.RowsAffected()
}

func (r *QuestionRepo) Stats(ctx context.Context) (*domain.QueueStats, error) {
	stats := &domain.QueueStats{
		ByStatus:   make(map[string]int),
		ByResponse: make(map[string]int),
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, count(*) FROM questions GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("question stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("question stats: %w", err)
		}
		stats.ByStatus[status] = count
		stats.TotalQuestions += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("question stats: %w", err)
	}

	respRows, err := r.db.QueryContext(ctx, `
		SELECT response_type, count(*) FROM questions
		WHERE status = 'answered' AND response_type IS NOT NULL
		GROUP BY response_type
	`)
	if err != nil {
		return nil, fmt.Errorf("question stats: %w", err)
	}
	defer respRows.Close()
	for respRows.Next() {
		var rt string
		var count int
		if err := respRows.Scan(&rt, &count); err != nil {
			return nil, fmt.Errorf("question stats: %w", err)
		}
		stats.ByResponse[rt] = count
	}
	if err := respRows.Err(); err != nil {
		return nil, fmt.Errorf("question stats: %w", err)
	}

	yes := stats.ByResponse[string(domain.ResponseYes)]
	no := stats.ByResponse[string(domain.ResponseNo)]
	if yes+no > 0 {
		stats.AcceptanceRate = float64(yes) / float64(yes+no)
	}

	var avg sql.NullFloat64
	err = r.db.GetContext(ctx, &avg,
		`SELECT avg(response_time_seconds) FROM questions WHERE response_time_seconds IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("question stats: %w", err)
	}
	if avg.Valid {
		stats.AvgResponseSeconds = avg.Float64
	}

	return stats, nil
}
