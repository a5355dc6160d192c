package submissions

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/saq-app/backend/internal/catalog"
	"github.com/saq-app/backend/internal/database/dbtest"
	"github.com/saq-app/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCatalog(t *testing.T, db *sql.DB) *catalog.Service {
	t.Helper()
	svc := catalog.NewService(catalog.NewStore(db))
	_, err := svc.Import(context.Background(), models.CatalogEnvelope{
		Version: 1,
		Pages: []models.CatalogPage{
			{
				Slug: "saq", Published: true,
				Questions: []models.CatalogQuestion{
					{
						Slug: "q1", Type: models.QuestionSingleChoice, Tags: []string{"security"},
						Answers: []models.CatalogAnswer{{Slug: "yes", Score: 3}, {Slug: "no", Score: 0}},
					},
					{
						Slug: "q2", Type: models.QuestionMultiChoice, Tags: []string{"security"},
						Answers: []models.CatalogAnswer{{Slug: "git", Score: 2}, {Slug: "ci", Score: 1}},
					},
					{Slug: "q3", Type: models.QuestionFreeText, Tags: []string{"feedback"}},
					{
						Slug: "q4", Type: models.QuestionSingleChoice,
						Answers: []models.CatalogAnswer{{Slug: "a", Score: 1}},
					},
				},
			},
			{
				Slug: "hidden", Published: false,
				Questions: []models.CatalogQuestion{{
					Slug: "q-hidden", Type: models.QuestionSingleChoice, Tags: []string{"security"},
					Answers: []models.CatalogAnswer{{Slug: "yes", Score: 1}},
				}},
			},
		},
	})
	require.NoError(t, err)
	return svc
}

type fixture struct {
	db    *sql.DB
	svc   *Service
	alice int64
	bob   int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	scorer := seedCatalog(t, db)
	return &fixture{
		db:    db,
		svc:   NewService(NewStore(db), scorer),
		alice: dbtest.CreateUser(t, db, "alice"),
		bob:   dbtest.CreateUser(t, db, "bob"),
	}
}

func (f *fixture) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(query, args...).Scan(&n))
	return n
}

func answers(pairs ...string) []models.AnswerInput {
	var out []models.AnswerInput
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.AnswerInput{QuestionSlug: pairs[i], Answer: pairs[i+1]})
	}
	return out
}

func TestSubmitPersistsScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Submit(ctx, f.alice, answers("q1", "yes", "q2", "git,ci", "q3", "hello, world"), ""))

	var answer string
	var score int
	require.NoError(t, f.db.QueryRow(
		`SELECT answer, score FROM submissions WHERE user_id = $1 AND question_slug = $2`, f.alice, "q2",
	).Scan(&answer, &score))
	assert.Equal(t, "git,ci", answer)
	assert.Equal(t, 3, score)

	assert.Equal(t, 3, f.count(t, `SELECT COUNT(*) FROM submissions WHERE user_id = $1`, f.alice))
}

func TestSubmitRejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name    string
		input   []models.AnswerInput
		wantMsg string
		wantErr error
	}{
		{"unknown question", answers("nope", "yes"), "Invalid question 'nope'", catalog.ErrQuestionNotFound},
		{"unpublished question", answers("q-hidden", "yes"), "Invalid question 'q-hidden'", catalog.ErrQuestionNotFound},
		{"malformed answer", answers("q1", "yes no"), "Invalid answers: yes no", catalog.ErrInvalidAnswerFormat},
		{"unknown answer", answers("q1", "maybe"), "Invalid answer 'q1:maybe'", catalog.ErrUnknownAnswer},
		{"multi slug on single", answers("q1", "yes,no"), "Invalid answer 'q1:yes,no'", catalog.ErrUnknownAnswer},
		{"valid then invalid", answers("q1", "yes", "zzz", "yes"), "Invalid question 'zzz'", catalog.ErrQuestionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			err := f.svc.Submit(context.Background(), f.alice, tt.input, "")

			var submitErr *SubmitError
			require.True(t, errors.As(err, &submitErr), "got %v", err)
			assert.Equal(t, tt.wantMsg, submitErr.Error())
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM submissions`))
		})
	}
}

func TestResubmitUpdatesExistingRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Submit(ctx, f.alice, answers("q1", "yes"), ""))
	require.NoError(t, f.svc.Submit(ctx, f.alice, answers("q1", "no"), ""))

	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM submissions WHERE user_id = $1`, f.alice))

	resp, err := f.svc.Scores(ctx, f.alice, []string{"q1"})
	require.NoError(t, err)
	assert.Equal(t, models.ScoreEntry{Answer: "no", Score: 0}, resp.Submissions["q1"])
}

func TestSubmissionsAreScopedPerUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Submit(ctx, f.alice, answers("q1", "yes"), ""))
	require.NoError(t, f.svc.Submit(ctx, f.bob, answers("q1", "no"), ""))

	resp, err := f.svc.Scores(ctx, f.alice, []string{"q1"})
	require.NoError(t, err)
	assert.Equal(t, "yes", resp.Submissions["q1"].Answer)
}

func TestSubmitWithTagCreatesNumberedSets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Submit(ctx, f.alice, answers("q1", "yes", "q2", "git", "q3", "note"), "security"))

	sets, err := f.svc.ListSets(ctx, f.alice, "")
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "security1", sets[0].Slug)
	assert.Equal(t, "security", sets[0].Tag)
	assert.Len(t, sets[0].Submissions, 2, "only questions tagged security are grouped")

	// q3 carries another tag and stays editable.
	assert.Equal(t, 1, f.count(t,
		`SELECT COUNT(*) FROM submissions WHERE user_id = $1 AND submission_set_id IS NULL`, f.alice))

	require.NoError(t, f.svc.Submit(ctx, f.alice, answers("q1", "no"), "security"))
	sets, err = f.svc.ListSets(ctx, f.alice, "security")
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, "security2", sets[1].Slug)

	// Slugs are numbered per user.
	require.NoError(t, f.svc.Submit(ctx, f.bob, answers("q1", "yes"), "security"))
	sets, err = f.svc.ListSets(ctx, f.bob, "")
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "security1", sets[0].Slug)
}

func TestGroupedSubmissionsAreNotUpdated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Submit(ctx, f.alice, answers("q1", "yes"), "security"))
	require.NoError(t, f.svc.Submit(ctx, f.alice, answers("q1", "no"), ""))

	var grouped string
	require.NoError(t, f.db.QueryRow(
		`SELECT answer FROM submissions WHERE user_id = $1 AND submission_set_id IS NOT NULL`, f.alice,
	).Scan(&grouped))
	assert.Equal(t, "yes", grouped)
	assert.Equal(t, 2, f.count(t, `SELECT COUNT(*) FROM submissions WHERE user_id = $1`, f.alice))

	// The editable answer is the current one.
	resp, err := f.svc.Scores(ctx, f.alice, []string{"q1"})
	require.NoError(t, err)
	assert.Equal(t, "no", resp.Submissions["q1"].Answer)
}

func TestCreateSubmissionSetWithNothingToGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	set, err := f.svc.CreateSubmissionSet(ctx, f.alice, "security")
	require.NoError(t, err)
	assert.Nil(t, set)

	require.NoError(t, f.svc.Submit(ctx, f.alice, answers("q4", "a"), "no-such-tag"))
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM submission_sets`))
}

func TestNextSetSlugSkipsUsedSlugs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := NewStore(f.db)

	for _, slug := range []string{"audit1", "audit2", "audit4"} {
		_, err := st.CreateSet(ctx, f.alice, slug, "audit", f.svc.now())
		require.NoError(t, err)
	}

	slug, err := nextSetSlug(ctx, st, f.alice, "audit")
	require.NoError(t, err)
	assert.Equal(t, "audit3", slug)

	slug, err = nextSetSlug(ctx, st, f.bob, "audit")
	require.NoError(t, err)
	assert.Equal(t, "audit1", slug)
}

func TestScores(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Submit(ctx, f.alice, answers("q1", "yes", "q2", "git"), ""))

	resp, err := f.svc.Scores(ctx, f.alice, []string{"q1", "q2"})
	require.NoError(t, err)
	assert.True(t, resp.Complete)
	assert.Equal(t, []string{"q1", "q2"}, resp.Questions)
	assert.Equal(t, map[string]models.ScoreEntry{
		"q1": {Answer: "yes", Score: 3},
		"q2": {Answer: "git", Score: 2},
	}, resp.Submissions)

	resp, err = f.svc.Scores(ctx, f.alice, []string{"q1", "q3"})
	require.NoError(t, err)
	assert.False(t, resp.Complete)
	assert.Len(t, resp.Submissions, 1)

	// Grouped submissions still count as answered.
	require.NoError(t, f.svc.Submit(ctx, f.alice, nil, "security"))
	resp, err = f.svc.Scores(ctx, f.alice, []string{"q1", "q2"})
	require.NoError(t, err)
	assert.True(t, resp.Complete)

	_, err = f.svc.Scores(ctx, f.alice, nil)
	assert.ErrorIs(t, err, ErrNoQuestions)
}

func TestChangeAnswerSetDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Submit(ctx, f.alice, answers("q1", "yes", "q2", "git"), "security"))
	sets, err := f.svc.ListSets(ctx, f.alice, "")
	require.NoError(t, err)
	require.Len(t, sets, 1)

	require.NoError(t, f.svc.ChangeAnswerSet(ctx, f.alice, sets[0].ID, models.ActionDelete))

	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM submission_sets`))
	assert.Zero(t, f.count(t, `SELECT COUNT(*) FROM submissions`), "grouped submissions go with their set")
}

func TestChangeAnswerSetReopens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Submit(ctx, f.alice, answers("q1", "yes", "q2", "git"), "security"))
	require.NoError(t, f.svc.Submit(ctx, f.alice, answers("q1", "no"), ""))

	sets, err := f.svc.ListSets(ctx, f.alice, "")
	require.NoError(t, err)
	require.Len(t, sets, 1)
	original := sets[0]

	require.NoError(t, f.svc.ChangeAnswerSet(ctx, f.alice, original.ID, ""))

	sets, err = f.svc.ListSets(ctx, f.alice, "")
	require.NoError(t, err)
	require.Len(t, sets, 1)
	snapshot := sets[0]
	assert.NotEqual(t, original.ID, snapshot.ID)
	assert.Equal(t, "security2", snapshot.Slug)
	require.Len(t, snapshot.Submissions, 1)
	assert.Equal(t, "no", snapshot.Submissions[0].Answer)

	// The original set's answers are editable again.
	resp, err := f.svc.Scores(ctx, f.alice, []string{"q1", "q2"})
	require.NoError(t, err)
	assert.Equal(t, "yes", resp.Submissions["q1"].Answer)
	assert.Equal(t, "git", resp.Submissions["q2"].Answer)
	assert.Equal(t, 2, f.count(t,
		`SELECT COUNT(*) FROM submissions WHERE user_id = $1 AND submission_set_id IS NULL`, f.alice))
}

func TestChangeAnswerSetNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Submit(ctx, f.alice, answers("q1", "yes"), "security"))
	sets, err := f.svc.ListSets(ctx, f.alice, "")
	require.NoError(t, err)
	require.Len(t, sets, 1)

	err = f.svc.ChangeAnswerSet(ctx, f.bob, sets[0].ID, models.ActionDelete)
	assert.ErrorIs(t, err, ErrSetNotFound)

	err = f.svc.ChangeAnswerSet(ctx, f.alice, 9999, "")
	assert.ErrorIs(t, err, ErrSetNotFound)

	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM submission_sets`))
}
