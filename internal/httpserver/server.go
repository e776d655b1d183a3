package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/erikldr/sortear/internal/auth"
	"github.com/erikldr/sortear/internal/draw"
	"github.com/erikldr/sortear/internal/store"
)

// Server is the HTTP boundary of the draw engine. It maps the engine's
// typed errors onto status codes; transports beyond HTTP are the caller's
// concern, not the engine's.
type Server struct {
	engine    *draw.Engine
	store     store.Store
	jwtSecret []byte
}

func New(engine *draw.Engine, st store.Store, jwtSecret []byte) *Server {
	return &Server{
		engine:    engine,
		store:     st,
		jwtSecret: jwtSecret,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(auth.Middleware(s.jwtSecret))

	r.Post("/promotions/{id}/draws", s.handleCreateDraw)
	r.Get("/promotions/{id}/draws", s.handleListDraws)
	r.Get("/draws/{id}", s.handleGetDraw)
	r.Post("/draws/{id}/execute", s.handleExecute)
	r.Get("/draws/{id}/winners", s.handleWinners)
	r.Get("/draws/{id}/replay", s.handleReplay)
	r.Get("/healthz", s.handleHealth)

	return r
}

type createDrawRequest struct {
	Description string `json:"description"`
	Count       int    `json:"count"`
}

func (s *Server) handleCreateDraw(w http.ResponseWriter, r *http.Request) {
	promotionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid promotion id")
		return
	}
	var req createDrawRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	d, err := s.engine.CreateDraw(r.Context(), promotionID, req.Description, req.Count)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "promotion not found")
			return
		}
		var storageErr *draw.StorageError
		if errors.As(err, &storageErr) {
			respondError(w, http.StatusBadGateway, storageErr.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, d)
}

func (s *Server) handleListDraws(w http.ResponseWriter, r *http.Request) {
	promotionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid promotion id")
		return
	}
	draws, err := s.store.ListDraws(r.Context(), promotionID)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, draws)
}

func (s *Server) handleGetDraw(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid draw id")
		return
	}
	d, err := s.store.GetDraw(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(w, http.StatusNotFound, "draw not found")
			return
		}
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, d)
}

type executeRequest struct {
	Count int `json:"count"`
}

type executeResponse struct {
	DrawID  uuid.UUID     `json:"drawId"`
	Winners []winnerEntry `json:"winners"`
}

type winnerEntry struct {
	ParticipantID uuid.UUID `json:"participantId"`
	Position      int       `json:"position"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid draw id")
		return
	}
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	operator := ""
	if op := auth.FromContext(r.Context()); op != nil {
		operator = op.Subject
	}

	records, err := s.engine.Execute(r.Context(), id, req.Count, operator)
	if err != nil {
		s.respondExecuteError(w, err)
		return
	}

	resp := executeResponse{DrawID: id, Winners: make([]winnerEntry, 0, len(records))}
	for _, rec := range records {
		resp.Winners = append(resp.Winners, winnerEntry{
			ParticipantID: rec.ParticipantID,
			Position:      rec.Position,
			CreatedAt:     rec.CreatedAt,
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondExecuteError(w http.ResponseWriter, err error) {
	var insufficient *draw.InsufficientEligibleError
	var storageErr *draw.StorageError
	switch {
	case errors.Is(err, draw.ErrDrawNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, draw.ErrDrawNotPending):
		respondError(w, http.StatusConflict, err.Error())
	case errors.As(err, &insufficient):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":     insufficient.Error(),
			"requested": insufficient.Requested,
			"eligible":  insufficient.Eligible,
		})
	case errors.As(err, &storageErr):
		respondError(w, http.StatusBadGateway, storageErr.Error())
	case errors.Is(err, draw.ErrInvariantViolation):
		respondError(w, http.StatusInternalServerError, err.Error())
	default:
		respondError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handleWinners(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid draw id")
		return
	}
	records, err := s.engine.Winners(r.Context(), id)
	if err != nil {
		if errors.Is(err, draw.ErrDrawNotFound) {
			respondError(w, http.StatusNotFound, "draw not found")
			return
		}
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid draw id")
		return
	}
	result, err := s.engine.Replay(r.Context(), id)
	if err != nil {
		if errors.Is(err, draw.ErrDrawNotFound) {
			respondError(w, http.StatusNotFound, "draw not found")
			return
		}
		var storageErr *draw.StorageError
		if errors.As(err, &storageErr) {
			respondError(w, http.StatusBadGateway, storageErr.Error())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
