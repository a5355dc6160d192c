package catalog

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/saq-app/backend/internal/models"
)

var (
	ErrQuestionNotFound    = errors.New("question not found")
	ErrInvalidAnswerFormat = errors.New("invalid answer format")
	ErrUnknownAnswer       = errors.New("unknown answer")
)

// answerPattern is a comma separated list of answer slugs.
var answerPattern = regexp.MustCompile(`^[\w-]+(,[\w-]+)*$`)

// ValidAnswerFormat reports whether answer is acceptable input for q.
// Free-text questions take anything.
func ValidAnswerFormat(q *models.Question, answer string) bool {
	if q.Type == models.QuestionFreeText {
		return true
	}
	return answerPattern.MatchString(answer)
}

// Score computes the score of answer for q.
//
//	F: always 0
//	S: score of the answer whose slug is the whole value
//	M: sum of the scores of each comma separated slug
func Score(q *models.Question, answer string) (int, error) {
	switch q.Type {
	case models.QuestionFreeText:
		return 0, nil
	case models.QuestionSingleChoice:
		return answerScore(q, answer)
	case models.QuestionMultiChoice:
		total := 0
		for _, slug := range strings.Split(answer, ",") {
			s, err := answerScore(q, slug)
			if err != nil {
				return 0, err
			}
			total += s
		}
		return total, nil
	}
	return 0, fmt.Errorf("question %s: unsupported type %q", q.Slug, q.Type)
}

func answerScore(q *models.Question, slug string) (int, error) {
	for _, a := range q.Answers {
		if a.Slug == slug {
			return a.Score, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownAnswer, slug)
}
