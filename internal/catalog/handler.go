package catalog

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/saq-app/backend/internal/models"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the question lookup on public and, when admin is
// non-nil, the catalog export/import endpoints on admin.
func (h *Handler) RegisterRoutes(public, admin *mux.Router) {
	public.HandleFunc("/saq/questions/{slug}", h.GetQuestion).Methods("GET")
	if admin != nil {
		admin.HandleFunc("/catalog/export", h.ExportCatalog).Methods("GET")
		admin.HandleFunc("/catalog/import", h.ImportCatalog).Methods("POST")
	}
}

func (h *Handler) GetQuestion(w http.ResponseWriter, r *http.Request) {
	q, err := h.service.Question(r.Context(), mux.Vars(r)["slug"])
	if errors.Is(err, ErrQuestionNotFound) {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "Question not found"})
		return
	}
	if err != nil {
		log.Printf("[catalog] GetQuestion error: %v", err)
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Failed to get question"})
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *Handler) ExportCatalog(w http.ResponseWriter, r *http.Request) {
	envelope, err := h.service.Export(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: "Export failed: " + err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, envelope)
}

func (h *Handler) ImportCatalog(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20) // 10MB limit

	var envelope models.CatalogEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request body: " + err.Error()})
		return
	}

	if len(envelope.Pages) == 0 {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "No pages in payload"})
		return
	}

	result, err := h.service.Import(r.Context(), envelope)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "Import failed: " + err.Error()})
		return
	}

	log.Printf("[catalog] imported pages=%d questions=%d answers=%d", result.Pages, result.Questions, result.Answers)
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
