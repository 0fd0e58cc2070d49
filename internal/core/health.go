package core

import "net/http"

// HandleHealth is the liveness endpoint, mounted at GET /health. It reports
// process liveness only and always returns 200 with a plain "OK" body;
// dependency health surfaces through cycle logs and metrics instead.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
