package models

import "time"

type QuestionType string

const (
	QuestionSingleChoice QuestionType = "S"
	QuestionMultiChoice  QuestionType = "M"
	QuestionFreeText     QuestionType = "F"
)

var ValidQuestionTypes = map[QuestionType]bool{
	QuestionSingleChoice: true,
	QuestionMultiChoice:  true,
	QuestionFreeText:     true,
}

// ── Catalog ─────────────────────────────────────────────

type Page struct {
	ID        int64  `json:"id"`
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Published bool   `json:"published"`
}

type Question struct {
	ID      int64        `json:"id"`
	Slug    string       `json:"slug"`
	PageID  int64        `json:"page_id"`
	Label   string       `json:"label"`
	Type    QuestionType `json:"question_type"`
	Tags    []string     `json:"tags"`
	Answers []Answer     `json:"answers"`
}

type Answer struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Slug       string `json:"slug"`
	Title      string `json:"title"`
	Score      int    `json:"score"`
}

// ── Submissions ─────────────────────────────────────────

// Submission is one user's recorded answer and score for one question.
// SubmissionSetID is nil while the submission is still editable.
type Submission struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"user_id"`
	QuestionSlug    string    `json:"question"`
	Answer          string    `json:"answer"`
	Score           int       `json:"score"`
	SubmissionSetID *int64    `json:"submission_set_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type SubmissionSet struct {
	ID          int64        `json:"id"`
	UserID      int64        `json:"user_id"`
	Slug        string       `json:"slug"`
	Tag         string       `json:"tag"`
	CreatedAt   time.Time    `json:"created_at"`
	Submissions []Submission `json:"submissions"`
}

// AnswerInput is a single posted question_slug → answer pair.
type AnswerInput struct {
	QuestionSlug string
	Answer       string
}

type ScoreEntry struct {
	Answer string `json:"answer"`
	Score  int    `json:"score"`
}

type ScoresResponse struct {
	Questions   []string              `json:"questions"`
	Submissions map[string]ScoreEntry `json:"submissions"`
	Complete    bool                  `json:"complete"`
}

const ActionDelete = "delete"

type ChangeAnswerSetRequest struct {
	SubmissionSetID int64  `validate:"required,gt=0"`
	Action          string
}

// ── Catalog Export/Import ───────────────────────────────

type CatalogEnvelope struct {
	Version    int           `json:"version"`
	ExportedAt time.Time     `json:"exported_at"`
	Pages      []CatalogPage `json:"pages"`
}

type CatalogPage struct {
	Slug      string            `json:"slug" validate:"required,max=150"`
	Title     string            `json:"title"`
	Published bool              `json:"published"`
	Questions []CatalogQuestion `json:"questions" validate:"dive"`
}

type CatalogQuestion struct {
	Slug    string          `json:"slug" validate:"required,max=150"`
	Label   string          `json:"label"`
	Type    QuestionType    `json:"question_type" validate:"required,oneof=S M F"`
	Tags    []string        `json:"tags" validate:"dive,required,max=100"`
	Answers []CatalogAnswer `json:"answers" validate:"dive"`
}

type CatalogAnswer struct {
	Slug  string `json:"slug" validate:"required,max=150"`
	Title string `json:"title"`
	Score int    `json:"score"`
}

type ImportResult struct {
	Pages     int `json:"pages"`
	Questions int `json:"questions"`
	Answers   int `json:"answers"`
}
