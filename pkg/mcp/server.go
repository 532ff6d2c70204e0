package mcp

import (
	"context"
	"encoding/json"

	"github.com/docent-dev/docent/pkg/model"
	"github.com/docent-dev/docent/pkg/usecase/query"
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server exposes the query pipeline as an MCP tool over stdio. The
// transport carries no credentials, so the tenant is fixed at startup
// and every tool call is scoped to it.
type Server struct {
	uc     *query.UseCase
	tenant model.TenantID
}

// New creates an MCP server bound to one tenant
func New(uc *query.UseCase, tenant model.TenantID) *Server {
	return &Server{uc: uc, tenant: tenant}
}

type queryParams struct {
	Query          string `json:"query" jsonschema:"The question to answer from the tenant's documents"`
	ConversationID string `json:"conversation_id,omitempty" jsonschema:"Conversation to continue; a new one is started when omitted"`
}

var queryInputSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"query": {
			Type:        "string",
			Description: "The question to answer from the tenant's documents",
		},
		"conversation_id": {
			Type:        "string",
			Description: "Conversation to continue; a new one is started when omitted",
		},
	},
	Required: []string{"query"},
}

// Run serves MCP over stdio until the context ends.
func (s *Server) Run(ctx context.Context) error {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "docent",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name: "query_documents",
		Description: "Answer a question strictly from the tenant's ingested documents. " +
			"Returns the answer with citations, related highlights when no direct answer exists, " +
			"or a refusal when the documents cannot ground an answer.",
		InputSchema: queryInputSchema,
	}, s.queryDocuments)

	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp server failed")
	}
	return nil
}

func (s *Server) queryDocuments(ctx context.Context, req *mcp.CallToolRequest, params *queryParams) (*mcp.CallToolResult, any, error) {
	if params.Query == "" {
		return nil, nil, goerr.New("query is required")
	}

	conv := model.ConversationID(params.ConversationID)
	if conv == "" {
		conv = model.ConversationID(model.NewRequestID())
	}

	env, err := s.uc.Handle(ctx, query.Input{
		TenantID:       s.tenant,
		ConversationID: conv,
		Query:          params.Query,
	})
	if err != nil {
		return nil, nil, err
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return nil, nil, goerr.Wrap(err, "failed to serialize response")
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(raw)},
		},
	}, env, nil
}
