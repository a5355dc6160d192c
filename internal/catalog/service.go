package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/saq-app/backend/internal/models"
)

const catalogVersion = 1

type Service struct {
	store    *Store
	validate *validator.Validate
}

func NewService(store *Store) *Service {
	return &Service{store: store, validate: validator.New()}
}

func (s *Service) Question(ctx context.Context, slug string) (*models.Question, error) {
	return s.store.PublishedQuestion(ctx, slug)
}

// Evaluate looks up a published question, checks the answer format and
// scores it. The returned errors wrap ErrQuestionNotFound,
// ErrInvalidAnswerFormat or ErrUnknownAnswer.
func (s *Service) Evaluate(ctx context.Context, slug, answer string) (int, error) {
	q, err := s.store.PublishedQuestion(ctx, slug)
	if err != nil {
		return 0, err
	}
	if !ValidAnswerFormat(q, answer) {
		return 0, ErrInvalidAnswerFormat
	}
	return Score(q, answer)
}

// ── Export/Import ────────────────────────────────────────

func (s *Service) Export(ctx context.Context) (*models.CatalogEnvelope, error) {
	pages, err := s.store.ExportCatalog(ctx)
	if err != nil {
		return nil, err
	}
	if pages == nil {
		pages = []models.CatalogPage{}
	}
	return &models.CatalogEnvelope{
		Version:    catalogVersion,
		ExportedAt: time.Now().UTC(),
		Pages:      pages,
	}, nil
}

func (s *Service) Import(ctx context.Context, envelope models.CatalogEnvelope) (*models.ImportResult, error) {
	if envelope.Version != catalogVersion {
		return nil, fmt.Errorf("unsupported catalog version: %d", envelope.Version)
	}
	if err := validateEnvelope(s.validate, envelope); err != nil {
		return nil, err
	}
	return s.store.ImportCatalog(ctx, envelope.Pages)
}

func validateEnvelope(v *validator.Validate, envelope models.CatalogEnvelope) error {
	pageSlugs := make(map[string]bool)
	questionSlugs := make(map[string]bool)

	for i, p := range envelope.Pages {
		if err := v.Struct(p); err != nil {
			return fmt.Errorf("page %d: %w", i+1, err)
		}
		if pageSlugs[p.Slug] {
			return fmt.Errorf("page %d: duplicate slug %q", i+1, p.Slug)
		}
		pageSlugs[p.Slug] = true

		for _, q := range p.Questions {
			if questionSlugs[q.Slug] {
				return fmt.Errorf("page %s: duplicate question slug %q", p.Slug, q.Slug)
			}
			questionSlugs[q.Slug] = true

			answerSlugs := make(map[string]bool)
			for _, a := range q.Answers {
				if !answerPattern.MatchString(a.Slug) || answerSlugs[a.Slug] {
					return fmt.Errorf("question %s: invalid or duplicate answer slug %q", q.Slug, a.Slug)
				}
				answerSlugs[a.Slug] = true
			}
			if q.Type != models.QuestionFreeText && len(q.Answers) == 0 {
				return fmt.Errorf("question %s: choice questions need at least one answer", q.Slug)
			}
		}
	}
	return nil
}
