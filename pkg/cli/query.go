package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docent-dev/docent/pkg/model"
	"github.com/docent-dev/docent/pkg/usecase/query"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func queryCommand() *cli.Command {
	var (
		cfg      config
		tenantID string
		convID   string
		debug    bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "tenant",
			Aliases:     []string{"t"},
			Usage:       "Tenant ID",
			Sources:     cli.EnvVars("DOCENT_TENANT_ID"),
			Destination: &tenantID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "conversation",
			Usage:       "Conversation ID (a new one is generated when omitted)",
			Destination: &convID,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "Attach pipeline diagnostics to the response",
			Destination: &debug,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:      "query",
		Usage:     "Resolve one query and print the response envelope",
		ArgsUsage: "<query>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one query argument is required")
			}

			uc, _, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}

			if convID == "" {
				convID = string(model.NewRequestID())
			}

			env, err := uc.Handle(ctx, query.Input{
				TenantID:       model.TenantID(tenantID),
				ConversationID: model.ConversationID(convID),
				Query:          c.Args().First(),
				Debug:          debug,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to resolve query")
			}

			raw, err := json.MarshalIndent(env, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to serialize response")
			}

			fmt.Fprintln(c.Root().Writer, string(raw))
			return nil
		},
	}
}
