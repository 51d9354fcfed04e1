// Package api exposes the room API, media streaming and the relay endpoint
// over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"tvremote/catalog"
	"tvremote/logger"
	"tvremote/pairing"
	"tvremote/relay"
	"tvremote/stream"
)

// Server bundles the components behind the HTTP routes.
type Server struct {
	Catalog  *catalog.Catalog
	Streamer *stream.Server
	Hub      *relay.Hub
	Pairing  *pairing.Manager
}

// NewRouter builds the handler tree with logging and CORS applied to every
// route.
func NewRouter(s *Server, allowedOrigins []string, log zerolog.Logger) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.Hub.ServeWS)
	r.HandleFunc("/api/rooms/new", s.Pairing.IssueHandler()).Methods(http.MethodGet, http.MethodPost)
	r.HandleFunc("/videos/{room}/{filename:.+}", s.streamVideo).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/{room}/api/videos", s.listVideos).Methods(http.MethodGet)
	r.HandleFunc("/{room}/api/video", s.resolveVideo).Methods(http.MethodGet)

	return logger.HTTPMiddleware(log)(CORS(allowedOrigins)(r))
}

type videoList struct {
	Videos []catalog.Entry `json:"videos"`
}

type noVideo struct {
	Title string  `json:"title"`
	Src   *string `json:"src"`
}

func (s *Server) listVideos(w http.ResponseWriter, r *http.Request) {
	room, ok := relay.ParseRoomKey(mux.Vars(r)["room"])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid room")
		return
	}
	videos := s.Catalog.List(room)
	if videos == nil {
		videos = []catalog.Entry{}
	}
	writeJSON(w, http.StatusOK, videoList{Videos: videos})
}

func (s *Server) resolveVideo(w http.ResponseWriter, r *http.Request) {
	room, ok := relay.ParseRoomKey(mux.Vars(r)["room"])
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid room")
		return
	}
	entry, found := s.Catalog.Resolve(room, r.URL.Query().Get("name"))
	if !found {
		writeJSON(w, http.StatusOK, noVideo{Title: "No video found"})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) streamVideo(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	namespace, ok := relay.ParseRoomKey(vars["room"])
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	path, ok := s.Catalog.Path(namespace, vars["filename"])
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	s.Streamer.ServeFile(w, r, path)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"rooms":       s.Hub.Registry().RoomCount(),
		"pendingKeys": s.Pairing.Pending(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		l := logger.L()
		l.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
