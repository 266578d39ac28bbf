package api

import (
	"context"
	"net/http"

	"github.com/blagoySimandov/careerpilot/internal/apperr"
	"github.com/blagoySimandov/careerpilot/internal/auth"
	"github.com/blagoySimandov/careerpilot/internal/generation"
	"github.com/blagoySimandov/careerpilot/internal/logging"
	"github.com/gorilla/mux"
)

const maxGenerationBodyBytes = 256 << 10

type Generator interface {
	Generate(ctx context.Context, userID string, task generation.Task, jobDescription string) (*generation.Result, error)
}

type GenerationHandler struct {
	generator Generator
}

func NewGenerationHandler(g Generator) *GenerationHandler {
	return &GenerationHandler{generator: g}
}

type GenerateRequest struct {
	JobDescription string `json:"jobDescription"`
}

type TasksResponse struct {
	Tasks []generation.Task `json:"tasks"`
}

func (h *GenerationHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, TasksResponse{Tasks: generation.Tasks()})
}

func (h *GenerationHandler) Generate(w http.ResponseWriter, r *http.Request) {
	task, ok := generation.ParseTask(mux.Vars(r)["task"])
	if !ok {
		writeError(w, r, apperr.NotFound("api.generate", "unknown generation task"))
		return
	}
	h.generate(w, r, task)
}

// CreateBullets serves the legacy bullets-only endpoint.
func (h *GenerationHandler) CreateBullets(w http.ResponseWriter, r *http.Request) {
	h.generate(w, r, generation.TaskBullets)
}

func (h *GenerationHandler) generate(w http.ResponseWriter, r *http.Request, task generation.Task) {
	user, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		writeError(w, r, apperr.Unauthorized("Unauthorized"))
		return
	}
	logging.EnrichTask(r.Context(), string(task))

	var req GenerateRequest
	if err := decodeJSON(w, r, maxGenerationBodyBytes, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.generator.Generate(r.Context(), user.ID, task, req.JobDescription)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logging.EnrichUsage(r.Context(), string(result.Usage.Tier), result.Usage.UsageCount)
	writeJSON(w, http.StatusOK, result)
}
