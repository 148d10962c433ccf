package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
	"trivia-live/internal/app"
	"trivia-live/internal/domain"
)

// QuizHandler exposes the quiz editor over REST. Every route expects an
// authenticated user in the request context.
type QuizHandler struct {
	editor *app.QuizEditor
	log    zerolog.Logger
}

func NewQuizHandler(editor *app.QuizEditor, logger zerolog.Logger) *QuizHandler {
	return &QuizHandler{editor: editor, log: logger}
}

type createQuizRequest struct {
	Title string `json:"title"`
}

type saveRoundsRequest struct {
	Rounds []domain.Round `json:"rounds"`
}

// Register mounts the routes on mux, each wrapped by mw.
func (h *QuizHandler) Register(mux *http.ServeMux, mw func(http.Handler) http.Handler) {
	mux.Handle("GET /api/quizzes", mw(http.HandlerFunc(h.list)))
	mux.Handle("POST /api/quizzes", mw(http.HandlerFunc(h.create)))
	mux.Handle("GET /api/quizzes/{id}", mw(http.HandlerFunc(h.get)))
	mux.Handle("PUT /api/quizzes/{id}/rounds", mw(http.HandlerFunc(h.saveRounds)))
	mux.Handle("DELETE /api/quizzes/{id}", mw(http.HandlerFunc(h.delete)))
}

func (h *QuizHandler) list(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	quizzes, err := h.editor.List(r.Context(), user)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *QuizHandler) create(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	var req createQuizRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	quiz, err := h.editor.Create(r.Context(), user, req.Title)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (h *QuizHandler) get(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	quiz, err := h.editor.Get(r.Context(), user, r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *QuizHandler) saveRounds(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	var req saveRoundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Rounds == nil {
		req.Rounds = []domain.Round{}
	}
	quiz, err := h.editor.SaveRounds(r.Context(), user, r.PathValue("id"), req.Rounds)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *QuizHandler) delete(w http.ResponseWriter, r *http.Request) {
	user, _ := UserFromContext(r.Context())
	if err := h.editor.Delete(r.Context(), user, r.PathValue("id")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *QuizHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrEmptyTitle):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.log.Error().Err(err).Msg("quiz editor")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorPayload{Message: msg})
}
