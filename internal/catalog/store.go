package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/saq-app/backend/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ── Lookup ──────────────────────────────────────────────

// PublishedQuestion loads a question with its answers and tags. Questions
// whose page is unpublished are reported as ErrQuestionNotFound.
func (s *Store) PublishedQuestion(ctx context.Context, slug string) (*models.Question, error) {
	var q models.Question
	err := s.db.QueryRowContext(ctx,
		`SELECT q.id, q.slug, q.page_id, q.label, q.question_type
		 FROM questions q
		 JOIN pages p ON p.id = q.page_id
		 WHERE q.slug = $1 AND p.published = $2`,
		slug, true,
	).Scan(&q.ID, &q.Slug, &q.PageID, &q.Label, &q.Type)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get question: %w", err)
	}

	if q.Answers, err = s.answersFor(ctx, q.ID); err != nil {
		return nil, err
	}
	if q.Tags, err = s.tagsFor(ctx, q.ID); err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Store) answersFor(ctx context.Context, questionID int64) ([]models.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, question_id, slug, title, score FROM answers
		 WHERE question_id = $1 ORDER BY id`,
		questionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	answers := []models.Answer{}
	for rows.Next() {
		var a models.Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.Slug, &a.Title, &a.Score); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

func (s *Store) tagsFor(ctx context.Context, questionID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM question_tags WHERE question_id = $1 ORDER BY name`,
		questionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// ── Export/Import ───────────────────────────────────────

// ExportCatalog returns every page with its questions, answers and tags.
// Each table is read in full before the next query so a single-connection
// pool never holds two open result sets.
func (s *Store) ExportCatalog(ctx context.Context) ([]models.CatalogPage, error) {
	type pageRow struct {
		id   int64
		page models.CatalogPage
	}
	var pages []pageRow
	rows, err := s.db.QueryContext(ctx, `SELECT id, slug, title, published FROM pages ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("export pages: %w", err)
	}
	for rows.Next() {
		var p pageRow
		if err := rows.Scan(&p.id, &p.page.Slug, &p.page.Title, &p.page.Published); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan page: %w", err)
		}
		p.page.Questions = []models.CatalogQuestion{}
		pages = append(pages, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export pages: %w", err)
	}

	type questionRow struct {
		id     int64
		pageID int64
		q      models.CatalogQuestion
	}
	var questions []questionRow
	rows, err = s.db.QueryContext(ctx, `SELECT id, page_id, slug, label, question_type FROM questions ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("export questions: %w", err)
	}
	for rows.Next() {
		var q questionRow
		if err := rows.Scan(&q.id, &q.pageID, &q.q.Slug, &q.q.Label, &q.q.Type); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan question: %w", err)
		}
		q.q.Tags = []string{}
		q.q.Answers = []models.CatalogAnswer{}
		questions = append(questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export questions: %w", err)
	}

	answers := make(map[int64][]models.CatalogAnswer)
	rows, err = s.db.QueryContext(ctx, `SELECT question_id, slug, title, score FROM answers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("export answers: %w", err)
	}
	for rows.Next() {
		var qid int64
		var a models.CatalogAnswer
		if err := rows.Scan(&qid, &a.Slug, &a.Title, &a.Score); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers[qid] = append(answers[qid], a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export answers: %w", err)
	}

	tags := make(map[int64][]string)
	rows, err = s.db.QueryContext(ctx, `SELECT question_id, name FROM question_tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("export tags: %w", err)
	}
	for rows.Next() {
		var qid int64
		var name string
		if err := rows.Scan(&qid, &name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags[qid] = append(tags[qid], name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("export tags: %w", err)
	}

	pageIndex := make(map[int64]int, len(pages))
	for i, p := range pages {
		pageIndex[p.id] = i
	}
	for _, q := range questions {
		if a, ok := answers[q.id]; ok {
			q.q.Answers = a
		}
		if t, ok := tags[q.id]; ok {
			q.q.Tags = t
		}
		i, ok := pageIndex[q.pageID]
		if !ok {
			continue
		}
		pages[i].page.Questions = append(pages[i].page.Questions, q.q)
	}

	out := make([]models.CatalogPage, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.page)
	}
	return out, nil
}

// ImportCatalog upserts pages, questions, answers and tags by slug in a
// single transaction. Answers and tags missing from the import are removed
// from the questions it names.
func (s *Store) ImportCatalog(ctx context.Context, pages []models.CatalogPage) (*models.ImportResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result := &models.ImportResult{}
	for _, p := range pages {
		var pageID int64
		err := tx.QueryRowContext(ctx,
			`INSERT INTO pages (slug, title, published) VALUES ($1, $2, $3)
			 ON CONFLICT (slug) DO UPDATE SET title = excluded.title, published = excluded.published
			 RETURNING id`,
			p.Slug, p.Title, p.Published,
		).Scan(&pageID)
		if err != nil {
			return nil, fmt.Errorf("upsert page %s: %w", p.Slug, err)
		}
		result.Pages++

		for _, q := range p.Questions {
			n, err := importQuestion(ctx, tx, pageID, q)
			if err != nil {
				return nil, err
			}
			result.Questions++
			result.Answers += n
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}
	return result, nil
}

func importQuestion(ctx context.Context, q querier, pageID int64, cq models.CatalogQuestion) (int, error) {
	var questionID int64
	err := q.QueryRowContext(ctx,
		`INSERT INTO questions (slug, page_id, label, question_type) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (slug) DO UPDATE SET page_id = excluded.page_id, label = excluded.label,
		     question_type = excluded.question_type
		 RETURNING id`,
		cq.Slug, pageID, cq.Label, cq.Type,
	).Scan(&questionID)
	if err != nil {
		return 0, fmt.Errorf("upsert question %s: %w", cq.Slug, err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM question_tags WHERE question_id = $1`, questionID); err != nil {
		return 0, fmt.Errorf("clear tags %s: %w", cq.Slug, err)
	}
	for _, tag := range cq.Tags {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO question_tags (question_id, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			questionID, tag,
		); err != nil {
			return 0, fmt.Errorf("insert tag %s/%s: %w", cq.Slug, tag, err)
		}
	}

	keep := make([]string, 0, len(cq.Answers))
	args := []any{questionID}
	for _, a := range cq.Answers {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO answers (question_id, slug, title, score) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (question_id, slug) DO UPDATE SET title = excluded.title, score = excluded.score`,
			questionID, a.Slug, a.Title, a.Score,
		); err != nil {
			return 0, fmt.Errorf("upsert answer %s/%s: %w", cq.Slug, a.Slug, err)
		}
		args = append(args, a.Slug)
		keep = append(keep, fmt.Sprintf("$%d", len(args)))
	}

	prune := `DELETE FROM answers WHERE question_id = $1`
	if len(keep) > 0 {
		prune += ` AND slug NOT IN (` + strings.Join(keep, ", ") + `)`
	}
	if _, err := q.ExecContext(ctx, prune, args...); err != nil {
		return 0, fmt.Errorf("prune answers %s: %w", cq.Slug, err)
	}

	return len(cq.Answers), nil
}
