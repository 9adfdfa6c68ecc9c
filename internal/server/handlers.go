package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// Version is stamped at build time with -ldflags "-X .../internal/server.Version=..."
var Version = "dev"

// handleHealth handles GET /api/health. It only pings the databases; the
// heavier checks live in /api/system/status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	for _, db := range s.systemHandlers.databases {
		if err := db.Conn().PingContext(r.Context()); err != nil {
			s.log.Warn().Err(err).Str("database", db.Name()).Msg("Health ping failed")
			status, code = "unavailable", http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, s.log, code, map[string]string{
		"status":  status,
		"service": "sigmaguard",
		"version": Version,
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, log zerolog.Logger, status int, message string) {
	writeJSON(w, log, status, map[string]string{"error": message})
}
