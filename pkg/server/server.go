package server

import (
	"encoding/json"
	"net/http"

	"github.com/docent-dev/docent/pkg/usecase/query"
	"github.com/docent-dev/docent/pkg/utils/logging"
)

// Server exposes the query pipeline and the audit read API over HTTP.
// Every route except /health requires a tenant bearer token.
type Server struct {
	mux *http.ServeMux
}

// New builds the HTTP handler. secret signs and verifies the HS256
// tenant tokens.
func New(uc *query.UseCase, reader Reader, secret string) *Server {
	s := &Server{mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /health", handleHealth)

	authed := http.NewServeMux()
	authed.Handle("POST /query", handleQuery(uc))
	authed.Handle("GET /conversations", handleListConversations(reader))
	authed.Handle("GET /conversations/{id}", handleGetConversation(reader))
	authed.Handle("GET /conversations/{id}/queries", handleListQueries(reader))

	s.mux.Handle("/", authMiddleware(secret, authed))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(r, w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func writeJSON(r *http.Request, w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.From(r.Context()).Warn("failed to encode response", "error", err)
	}
}
