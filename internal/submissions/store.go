package submissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/saq-app/backend/internal/models"
)

var ErrSetNotFound = errors.New("submission set not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	q  querier
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// WithTx runs fn against a Store bound to a single transaction, committing
// when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Store{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ── Submissions ─────────────────────────────────────────

// UpsertUngrouped updates the user's editable submission for the question
// or creates it. Submissions that already belong to a set are never touched.
func (s *Store) UpsertUngrouped(ctx context.Context, userID int64, questionSlug, answer string, score int, now time.Time) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE submissions SET answer = $1, score = $2, updated_at = $3
		 WHERE user_id = $4 AND question_slug = $5 AND submission_set_id IS NULL`,
		answer, score, now.UnixMilli(), userID, questionSlug,
	)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update submission rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO submissions (user_id, question_slug, answer, score, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, questionSlug, answer, score, now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// SubmissionsForSlugs returns the user's submissions for the given question
// slugs, grouped rows first and oldest first within each group.
func (s *Store) SubmissionsForSlugs(ctx context.Context, userID int64, slugs []string) ([]models.Submission, error) {
	args := []any{userID}
	placeholders := make([]string, 0, len(slugs))
	for _, slug := range slugs {
		args = append(args, slug)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	rows, err := s.q.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM submissions
		 WHERE user_id = $1 AND question_slug IN (%s)
		 ORDER BY CASE WHEN submission_set_id IS NULL THEN 1 ELSE 0 END, id`,
			submissionCols, strings.Join(placeholders, ", ")),
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return scanSubmissions(rows)
}

// ── Submission Sets ─────────────────────────────────────

func (s *Store) SetSlugExists(ctx context.Context, userID int64, slug string) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM submission_sets WHERE user_id = $1 AND slug = $2)`,
		userID, slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("probe set slug: %w", err)
	}
	return exists, nil
}

// UngroupedIDsForTag returns the user's editable submissions whose question
// carries the tag.
func (s *Store) UngroupedIDsForTag(ctx context.Context, userID int64, tag string) ([]int64, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT s.id FROM submissions s
		 WHERE s.user_id = $1 AND s.submission_set_id IS NULL
		   AND s.question_slug IN (
		       SELECT q.slug FROM questions q
		       JOIN question_tags t ON t.question_id = q.id
		       WHERE t.name = $2)
		 ORDER BY s.id`,
		userID, tag,
	)
	if err != nil {
		return nil, fmt.Errorf("list tagged submissions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan submission id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) CreateSet(ctx context.Context, userID int64, slug, tag string, now time.Time) (*models.SubmissionSet, error) {
	set := models.SubmissionSet{UserID: userID, Slug: slug, Tag: tag, CreatedAt: time.UnixMilli(now.UnixMilli()).UTC()}
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO submission_sets (user_id, slug, tag, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		userID, slug, tag, now.UnixMilli(),
	).Scan(&set.ID)
	if err != nil {
		return nil, fmt.Errorf("create submission set: %w", err)
	}
	return &set, nil
}

// AssignToSet moves the given submissions into the set.
func (s *Store) AssignToSet(ctx context.Context, setID int64, submissionIDs []int64, now time.Time) error {
	if len(submissionIDs) == 0 {
		return nil
	}
	args := []any{setID, now.UnixMilli()}
	placeholders := make([]string, 0, len(submissionIDs))
	for _, id := range submissionIDs {
		args = append(args, id)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	_, err := s.q.ExecContext(ctx,
		fmt.Sprintf(`UPDATE submissions SET submission_set_id = $1, updated_at = $2
		 WHERE id IN (%s)`, strings.Join(placeholders, ", ")),
		args...,
	)
	if err != nil {
		return fmt.Errorf("assign submissions: %w", err)
	}
	return nil
}

// GetSet loads a set owned by the user, without its submissions.
func (s *Store) GetSet(ctx context.Context, userID, setID int64) (*models.SubmissionSet, error) {
	var set models.SubmissionSet
	var createdAt int64
	err := s.q.QueryRowContext(ctx,
		`SELECT id, user_id, slug, tag, created_at FROM submission_sets
		 WHERE id = $1 AND user_id = $2`,
		setID, userID,
	).Scan(&set.ID, &set.UserID, &set.Slug, &set.Tag, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get submission set: %w", err)
	}
	set.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &set, nil
}

// DetachSet puts the set's submissions back into the editable state.
func (s *Store) DetachSet(ctx context.Context, setID int64, now time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`UPDATE submissions SET submission_set_id = NULL, updated_at = $1
		 WHERE submission_set_id = $2`,
		now.UnixMilli(), setID,
	)
	if err != nil {
		return fmt.Errorf("detach submissions: %w", err)
	}
	return nil
}

// DeleteSet removes the set; submissions still attached are deleted with it.
func (s *Store) DeleteSet(ctx context.Context, setID int64) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM submission_sets WHERE id = $1`, setID); err != nil {
		return fmt.Errorf("delete submission set: %w", err)
	}
	return nil
}

// ListSets returns the user's sets, oldest first, each with its submissions.
// An empty tag lists every set.
func (s *Store) ListSets(ctx context.Context, userID int64, tag string) ([]models.SubmissionSet, error) {
	query := `SELECT id, user_id, slug, tag, created_at FROM submission_sets WHERE user_id = $1`
	args := []any{userID}
	if tag != "" {
		query += ` AND tag = $2`
		args = append(args, tag)
	}
	query += ` ORDER BY id`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list submission sets: %w", err)
	}
	sets := []models.SubmissionSet{}
	index := make(map[int64]int)
	for rows.Next() {
		var set models.SubmissionSet
		var createdAt int64
		if err := rows.Scan(&set.ID, &set.UserID, &set.Slug, &set.Tag, &createdAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan submission set: %w", err)
		}
		set.CreatedAt = time.UnixMilli(createdAt).UTC()
		set.Submissions = []models.Submission{}
		index[set.ID] = len(sets)
		sets = append(sets, set)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list submission sets: %w", err)
	}
	if len(sets) == 0 {
		return sets, nil
	}

	// Read all grouped submissions after the set cursor is closed.
	rows, err = s.q.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM submissions
		 WHERE user_id = $1 AND submission_set_id IS NOT NULL ORDER BY id`, submissionCols),
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list grouped submissions: %w", err)
	}
	grouped, err := scanSubmissions(rows)
	if err != nil {
		return nil, err
	}
	for _, sub := range grouped {
		if i, ok := index[*sub.SubmissionSetID]; ok {
			sets[i].Submissions = append(sets[i].Submissions, sub)
		}
	}
	return sets, nil
}

const submissionCols = `id, user_id, question_slug, answer, score, submission_set_id, created_at, updated_at`

func scanSubmissions(rows *sql.Rows) ([]models.Submission, error) {
	defer rows.Close()

	var out []models.Submission
	for rows.Next() {
		var sub models.Submission
		var setID sql.NullInt64
		var createdAt, updatedAt int64
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.QuestionSlug, &sub.Answer, &sub.Score,
			&setID, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		if setID.Valid {
			id := setID.Int64
			sub.SubmissionSetID = &id
		}
		sub.CreatedAt = time.UnixMilli(createdAt).UTC()
		sub.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		out = append(out, sub)
	}
	return out, rows.Err()
}
