package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/docent-dev/docent/pkg/model"
	"github.com/docent-dev/docent/pkg/repository"
	"github.com/docent-dev/docent/pkg/usecase/query"
	"github.com/docent-dev/docent/pkg/utils/logging"
)

// Reader is the audit read surface the server exposes. The query
// UseCase owns all writes.
type Reader interface {
	GetConversation(ctx context.Context, tenant model.TenantID, conv model.ConversationID) (*model.ConversationState, error)
	ListConversations(ctx context.Context, tenant model.TenantID) ([]*model.ConversationState, error)
	ListQueries(ctx context.Context, tenant model.TenantID, conv model.ConversationID) ([]*model.QueryRecord, error)
}

// handleQuery runs the pipeline. Modeled refusals and fallbacks are
// successful responses; only upstream failures become 5xx.
func handleQuery(uc *query.UseCase) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "tenant not resolved")
			return
		}

		var req model.QueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Query == "" {
			writeError(w, http.StatusBadRequest, "query is required")
			return
		}
		if req.ConversationID == "" {
			writeError(w, http.StatusBadRequest, "conversation_id is required")
			return
		}

		env, err := uc.Handle(r.Context(), query.Input{
			TenantID:       tenant,
			ConversationID: req.ConversationID,
			Query:          req.Query,
			Debug:          req.Debug,
		})
		if err != nil {
			logging.From(r.Context()).Error("query pipeline failed", "error", err,
				"tenant", tenant, "conversation", req.ConversationID)
			writeError(w, http.StatusBadGateway, "failed to resolve query")
			return
		}

		writeJSON(r, w, http.StatusOK, env)
	})
}

func handleListConversations(reader Reader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "tenant not resolved")
			return
		}

		convs, err := reader.ListConversations(r.Context(), tenant)
		if err != nil {
			logging.From(r.Context()).Error("failed to list conversations", "error", err, "tenant", tenant)
			writeError(w, http.StatusInternalServerError, "failed to list conversations")
			return
		}

		writeJSON(r, w, http.StatusOK, map[string]any{"conversations": convs})
	})
}

func handleGetConversation(reader Reader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "tenant not resolved")
			return
		}

		conv := model.ConversationID(r.PathValue("id"))
		state, err := reader.GetConversation(r.Context(), tenant, conv)
		if err != nil {
			if errors.Is(err, repository.ErrConversationNotFound) {
				writeError(w, http.StatusNotFound, "conversation not found")
				return
			}
			logging.From(r.Context()).Error("failed to get conversation", "error", err, "tenant", tenant)
			writeError(w, http.StatusInternalServerError, "failed to get conversation")
			return
		}

		writeJSON(r, w, http.StatusOK, state)
	})
}

func handleListQueries(reader Reader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := tenantFrom(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "tenant not resolved")
			return
		}

		conv := model.ConversationID(r.PathValue("id"))
		records, err := reader.ListQueries(r.Context(), tenant, conv)
		if err != nil {
			logging.From(r.Context()).Error("failed to list queries", "error", err, "tenant", tenant)
			writeError(w, http.StatusInternalServerError, "failed to list queries")
			return
		}

		writeJSON(r, w, http.StatusOK, map[string]any{"queries": records})
	})
}
