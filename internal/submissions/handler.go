package submissions

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/saq-app/backend/internal/auth"
	"github.com/saq-app/backend/internal/middleware"
	"github.com/saq-app/backend/internal/models"
)

const (
	setTagField    = "submission_set_tag"
	maxFormMemory  = 1 << 20
	responseOK     = "OK"
	responseNotOK  = "NOK"
	setIDField     = "submission"
	setActionField = "action"
)

type Handler struct {
	service  *Service
	validate *validator.Validate
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// RegisterRoutes mounts the SAQ endpoints. submitAuth guards answer intake
// so it can be swapped for lazy sign-up; requireAuth guards the rest.
func (h *Handler) RegisterRoutes(r *mux.Router, submitAuth, requireAuth mux.MiddlewareFunc) {
	r.Handle("/saq/submit", submitAuth(http.HandlerFunc(h.Submit))).Methods("POST")
	r.Handle("/saq/scores", requireAuth(middleware.NeverCache(http.HandlerFunc(h.Scores)))).Methods("GET")
	r.Handle("/saq/change-answer-set", requireAuth(http.HandlerFunc(h.ChangeAnswerSet))).Methods("POST")
	r.Handle("/saq/submission-sets", requireAuth(middleware.NeverCache(http.HandlerFunc(h.ListSets)))).Methods("GET")
}

func getUserID(r *http.Request) (int64, bool) {
	return auth.UserID(r.Context())
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeText(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := parseForm(r); err != nil {
		writeText(w, http.StatusBadRequest, "Invalid form body")
		return
	}

	tag := ""
	keys := make([]string, 0, len(r.PostForm))
	for key, values := range r.PostForm {
		if key == setTagField {
			if len(values) > 0 {
				tag = values[0]
			}
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	answers := make([]models.AnswerInput, 0, len(keys))
	for _, key := range keys {
		answers = append(answers, models.AnswerInput{QuestionSlug: key, Answer: lastValue(r.PostForm[key])})
	}

	err := h.service.Submit(r.Context(), userID, answers, tag)
	var submitErr *SubmitError
	if errors.As(err, &submitErr) {
		writeText(w, http.StatusBadRequest, submitErr.Error())
		return
	}
	if err != nil {
		log.Printf("[handler] Submit error: %v", err)
		writeText(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeText(w, http.StatusOK, responseOK)
}

func (h *Handler) Scores(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	var slugs []string
	for _, slug := range r.URL.Query()["q"] {
		if slug != "" {
			slugs = append(slugs, slug)
		}
	}

	resp, err := h.service.Scores(r.Context(), userID, slugs)
	if errors.Is(err, ErrNoQuestions) {
		writeText(w, http.StatusBadRequest, "No questions supplied")
		return
	}
	if err != nil {
		log.Printf("[handler] Scores error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get scores"})
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) ChangeAnswerSet(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeText(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if err := parseForm(r); err != nil {
		writeText(w, http.StatusBadRequest, responseNotOK)
		return
	}

	ids := r.PostForm[setIDField]
	if len(ids) != 1 {
		writeText(w, http.StatusBadRequest, responseNotOK)
		return
	}
	setID, err := strconv.ParseInt(ids[0], 10, 64)
	if err != nil {
		writeText(w, http.StatusBadRequest, responseNotOK)
		return
	}

	req := models.ChangeAnswerSetRequest{
		SubmissionSetID: setID,
		Action:          lastValue(r.PostForm[setActionField]),
	}
	if err := h.validate.Struct(req); err != nil {
		writeText(w, http.StatusBadRequest, responseNotOK)
		return
	}

	err = h.service.ChangeAnswerSet(r.Context(), userID, req.SubmissionSetID, req.Action)
	if errors.Is(err, ErrSetNotFound) {
		writeText(w, http.StatusBadRequest, responseNotOK)
		return
	}
	if err != nil {
		log.Printf("[handler] ChangeAnswerSet error: %v", err)
		writeText(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	writeText(w, http.StatusOK, responseOK)
}

func (h *Handler) ListSets(w http.ResponseWriter, r *http.Request) {
	userID, ok := getUserID(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, models.ErrorResponse{Error: "Authentication required"})
		return
	}

	sets, err := h.service.ListSets(r.Context(), userID, r.URL.Query().Get("tag"))
	if err != nil {
		log.Printf("[handler] ListSets error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to list submission sets"})
		return
	}

	writeJSON(w, http.StatusOK, sets)
}

// parseForm accepts url-encoded and multipart bodies.
func parseForm(r *http.Request) error {
	err := r.ParseMultipartForm(maxFormMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return nil
	}
	return err
}

func lastValue(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[len(values)-1]
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
