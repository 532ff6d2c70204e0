package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/docent-dev/docent/pkg/model"
)

func conversationsCommand() *cli.Command {
	return &cli.Command{
		Name:  "conversations",
		Usage: "Inspect the per-tenant audit log",
		Commands: []*cli.Command{
			conversationsListCommand(),
			conversationsShowCommand(),
		},
	}
}

func conversationsListCommand() *cli.Command {
	var (
		cfg      config
		tenantID string
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
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List conversations, most recently active first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := cfg.resolve(); err != nil {
				return err
			}
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			convs, err := repo.ListConversations(ctx, model.TenantID(tenantID))
			if err != nil {
				return goerr.Wrap(err, "failed to list conversations")
			}

			for _, conv := range convs {
				fmt.Fprintf(c.Root().Writer, "%s\tcreated=%s\tlast_activity=%s\n",
					conv.ConversationID,
					conv.CreatedAt.Format(time.RFC3339),
					conv.LastActivityAt.Format(time.RFC3339))
			}
			return nil
		},
	}
}

func conversationsShowCommand() *cli.Command {
	var (
		cfg      config
		tenantID string
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
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "show",
		Usage:     "Show the query records of a conversation",
		ArgsUsage: "<conversation-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one conversation ID argument is required")
			}

			if err := cfg.resolve(); err != nil {
				return err
			}
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			records, err := repo.ListQueries(ctx, model.TenantID(tenantID), model.ConversationID(c.Args().First()))
			if err != nil {
				return goerr.Wrap(err, "failed to list query records")
			}

			for _, r := range records {
				fmt.Fprintf(c.Root().Writer, "[%s] %s mode=%s\n",
					r.CreatedAt.Format(time.RFC3339), r.RequestID, r.Mode)
				fmt.Fprintf(c.Root().Writer, "  Q: %s\n", r.Query)
				if r.Answer != "" {
					fmt.Fprintf(c.Root().Writer, "  A: %s\n", r.Answer)
				}
				if r.Artifacts.Message != "" {
					fmt.Fprintf(c.Root().Writer, "  %s\n", r.Artifacts.Message)
				}
				for _, cite := range r.Citations {
					fmt.Fprintf(c.Root().Writer, "  cites: %s p.%d\n", cite.Source, cite.Page)
				}
			}
			return nil
		},
	}
}
