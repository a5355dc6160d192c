package submissions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/saq-app/backend/internal/catalog"
	"github.com/saq-app/backend/internal/models"
)

var ErrNoQuestions = errors.New("no questions supplied")

// Scorer validates and scores one answer for a published question.
type Scorer interface {
	Evaluate(ctx context.Context, questionSlug, answer string) (int, error)
}

// SubmitError describes the first posted answer that could not be accepted.
type SubmitError struct {
	QuestionSlug string
	Answer       string
	Err          error
}

func (e *SubmitError) Error() string {
	switch {
	case errors.Is(e.Err, catalog.ErrQuestionNotFound):
		return fmt.Sprintf("Invalid question '%s'", e.QuestionSlug)
	case errors.Is(e.Err, catalog.ErrInvalidAnswerFormat):
		return fmt.Sprintf("Invalid answers: %s", e.Answer)
	default:
		return fmt.Sprintf("Invalid answer '%s:%s'", e.QuestionSlug, e.Answer)
	}
}

func (e *SubmitError) Unwrap() error { return e.Err }

type Service struct {
	store  *Store
	scorer Scorer
	now    func() time.Time
}

func NewService(store *Store, scorer Scorer) *Service {
	return &Service{store: store, scorer: scorer, now: time.Now}
}

// Submit scores every answer, then upserts the user's editable submissions
// and, when tag is non-empty, groups them into a new submission set. Unlike
// a row-by-row intake that keeps the upserts made before a bad answer, a
// failed batch writes nothing: every answer is checked first and the writes
// share one transaction.
func (s *Service) Submit(ctx context.Context, userID int64, answers []models.AnswerInput, tag string) error {
	scores := make([]int, len(answers))
	for i, a := range answers {
		score, err := s.scorer.Evaluate(ctx, a.QuestionSlug, a.Answer)
		if err != nil {
			if isInputError(err) {
				return &SubmitError{QuestionSlug: a.QuestionSlug, Answer: a.Answer, Err: err}
			}
			return fmt.Errorf("evaluate %s: %w", a.QuestionSlug, err)
		}
		scores[i] = score
	}

	now := s.now()
	return s.store.WithTx(ctx, func(tx *Store) error {
		for i, a := range answers {
			if err := tx.UpsertUngrouped(ctx, userID, a.QuestionSlug, a.Answer, scores[i], now); err != nil {
				return err
			}
		}
		if tag == "" {
			return nil
		}
		_, err := s.createSubmissionSet(ctx, tx, userID, tag, now)
		return err
	})
}

// CreateSubmissionSet groups the user's editable submissions for tagged
// questions. It returns nil when there was nothing to group.
func (s *Service) CreateSubmissionSet(ctx context.Context, userID int64, tag string) (*models.SubmissionSet, error) {
	var set *models.SubmissionSet
	err := s.store.WithTx(ctx, func(tx *Store) error {
		var err error
		set, err = s.createSubmissionSet(ctx, tx, userID, tag, s.now())
		return err
	})
	return set, err
}

func (s *Service) createSubmissionSet(ctx context.Context, st *Store, userID int64, tag string, now time.Time) (*models.SubmissionSet, error) {
	slug, err := nextSetSlug(ctx, st, userID, tag)
	if err != nil {
		return nil, err
	}

	ids, err := st.UngroupedIDsForTag(ctx, userID, tag)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	set, err := st.CreateSet(ctx, userID, slug, tag, now)
	if err != nil {
		return nil, err
	}
	if err := st.AssignToSet(ctx, set.ID, ids, now); err != nil {
		return nil, err
	}
	log.Printf("[submissions] user=%d created set %s with %d submissions", userID, slug, len(ids))
	return set, nil
}

// nextSetSlug probes tag1, tag2, ... and returns the first slug the user
// has not used yet.
func nextSetSlug(ctx context.Context, st *Store, userID int64, tag string) (string, error) {
	for bump := 1; ; bump++ {
		slug := tag + strconv.Itoa(bump)
		exists, err := st.SetSlugExists(ctx, userID, slug)
		if err != nil {
			return "", err
		}
		if !exists {
			return slug, nil
		}
	}
}

// Scores returns the user's current answer and score per requested slug.
// An editable submission wins over grouped ones; among grouped ones the
// newest wins.
func (s *Service) Scores(ctx context.Context, userID int64, slugs []string) (*models.ScoresResponse, error) {
	if len(slugs) == 0 {
		return nil, ErrNoQuestions
	}

	subs, err := s.store.SubmissionsForSlugs(ctx, userID, slugs)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]models.ScoreEntry, len(subs))
	for _, sub := range subs {
		entries[sub.QuestionSlug] = models.ScoreEntry{Answer: sub.Answer, Score: sub.Score}
	}

	complete := true
	for _, slug := range slugs {
		if _, ok := entries[slug]; !ok {
			complete = false
			break
		}
	}

	return &models.ScoresResponse{
		Questions:   slugs,
		Submissions: entries,
		Complete:    complete,
	}, nil
}

// ChangeAnswerSet deletes a set, or re-opens it for editing: the current
// editable answers for the set's tag are snapshotted into a fresh set, the
// set's own submissions become editable again and the set is removed.
func (s *Service) ChangeAnswerSet(ctx context.Context, userID, setID int64, action string) error {
	now := s.now()
	return s.store.WithTx(ctx, func(tx *Store) error {
		set, err := tx.GetSet(ctx, userID, setID)
		if err != nil {
			return err
		}

		if action == models.ActionDelete {
			return tx.DeleteSet(ctx, set.ID)
		}

		if _, err := s.createSubmissionSet(ctx, tx, userID, set.Tag, now); err != nil {
			return err
		}
		if err := tx.DetachSet(ctx, set.ID, now); err != nil {
			return err
		}
		return tx.DeleteSet(ctx, set.ID)
	})
}

func (s *Service) ListSets(ctx context.Context, userID int64, tag string) ([]models.SubmissionSet, error) {
	return s.store.ListSets(ctx, userID, tag)
}

func isInputError(err error) bool {
	return errors.Is(err, catalog.ErrQuestionNotFound) ||
		errors.Is(err, catalog.ErrInvalidAnswerFormat) ||
		errors.Is(err, catalog.ErrUnknownAnswer)
}
