// Package httpapi exposes the snapfold HTTP surface: notification intake,
// a manual processing trigger, and read-only entity/marker views.
//
// Processing itself is asynchronous — intake handlers enqueue and answer
// 202 immediately; outcomes are observable through logs and markers only.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/snapfold/store"
)

// rdfType is the predicate identifying a record's type in notifications.
const rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

// Triple is one statement inside a change notification.
type Triple struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
}

// ChangeNotification is one element of the batch the source stream posts.
type ChangeNotification struct {
	Inserts []Triple `json:"inserts"`
	Deletes []Triple `json:"deletes"`
}

// Server holds the handler dependencies.
type Server struct {
	store         *store.Store
	trigger       func()
	snapshotTypes map[string]bool
	logger        *slog.Logger
}

// NewServer creates a Server. snapshotTypes are the type URIs whose inserts
// count as "snapshot inserted" and enqueue processing.
func NewServer(st *store.Store, trigger func(), snapshotTypes []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	types := make(map[string]bool, len(snapshotTypes))
	for _, t := range snapshotTypes {
		types[t] = true
	}
	return &Server{store: st, trigger: trigger, snapshotTypes: types, logger: logger}
}

// Routes builds the chi router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/ldes/notifications", s.handleNotifications)
	r.Post("/process", s.handleProcess)
	r.Get("/entities/{id}", s.handleGetEntity)
	r.Get("/snapshots/{id}/status", s.handleSnapshotStatus)
	r.Get("/healthz", s.handleHealth)
	return r
}

// handleNotifications accepts a batch of change notifications, filters for
// inserts matching a known snapshot type, and enqueues processing. Responds
// 202 without waiting for the run.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	var batch []ChangeNotification
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "malformed notification body")
		return
	}

	matched := 0
	for _, n := range batch {
		for _, t := range n.Inserts {
			if t.Predicate == rdfType && s.snapshotTypes[t.Object] {
				matched++
			}
		}
	}

	if matched > 0 {
		s.trigger()
	}
	s.logger.Info("httpapi: notifications received",
		"batch", len(batch), "snapshot_inserts", matched)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":           "accepted",
		"snapshot_inserts": matched,
	})
}

// handleProcess enqueues a processing run unconditionally.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	s.trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entity, err := s.store.GetEntity(r.Context(), id)
	if err != nil {
		s.logger.Error("httpapi: get entity", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if entity == nil {
		writeError(w, http.StatusNotFound, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// handleSnapshotStatus returns the marker history for a snapshot plus
// whether a strictly newer snapshot for the same target already succeeded.
func (s *Server) handleSnapshotStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	graph := r.URL.Query().Get("graph")
	if graph == "" {
		writeError(w, http.StatusBadRequest, "graph query parameter is required")
		return
	}

	snap, err := s.store.GetSnapshot(r.Context(), graph, id)
	if err != nil {
		s.logger.Error("httpapi: get snapshot", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "snapshot not found")
		return
	}

	markers, err := s.store.ListMarkers(r.Context(), graph, id)
	if err != nil {
		s.logger.Error("httpapi: list markers", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	superseded, err := s.store.HasNewerProcessed(r.Context(), snap)
	if err != nil {
		s.logger.Error("httpapi: newer processed check", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"snapshot_id":  snap.ID,
		"graph":        snap.Graph,
		"generated_at": snap.GeneratedAt,
		"markers":      markers,
		"superseded":   superseded,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
