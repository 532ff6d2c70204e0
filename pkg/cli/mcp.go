package cli

import (
	"context"

	"github.com/docent-dev/docent/pkg/mcp"
	"github.com/docent-dev/docent/pkg/model"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var (
		cfg      config
		tenantID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "tenant",
			Aliases:     []string{"t"},
			Usage:       "Tenant ID the MCP tools are scoped to",
			Sources:     cli.EnvVars("DOCENT_TENANT_ID"),
			Destination: &tenantID,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the query pipeline as MCP tools over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, _, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}

			return mcp.New(uc, model.TenantID(tenantID)).Run(ctx)
		},
	}
}
