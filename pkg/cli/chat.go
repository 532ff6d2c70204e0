package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/docent-dev/docent/pkg/model"
	"github.com/docent-dev/docent/pkg/usecase/query"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg      config
		tenantID string
		convID   string
		reset    bool
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
			Usage:       "Conversation ID to continue (a new one is generated when omitted)",
			Destination: &convID,
		},
		&cli.BoolFlag{
			Name:        "reset",
			Usage:       "Discard the conversation context before the first question",
			Destination: &reset,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive query session",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, _, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}

			if convID == "" {
				convID = string(model.NewRequestID())
			}

			ask := func(text string) (*model.ResponseEnvelope, error) {
				sp := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
					spinner.WithWriter(c.Root().ErrWriter))
				sp.Suffix = " thinking..."
				sp.Start()
				defer sp.Stop()

				return uc.Handle(ctx, query.Input{
					TenantID:       model.TenantID(tenantID),
					ConversationID: model.ConversationID(convID),
					Query:          text,
				})
			}

			if reset {
				if _, err := ask("reset"); err != nil {
					return goerr.Wrap(err, "failed to reset conversation")
				}
			}

			rl, err := readline.New("> ")
			if err != nil {
				return goerr.Wrap(err, "failed to initialize input")
			}
			defer rl.Close()

			fmt.Fprintf(c.Root().Writer, "Chat session started (conversation %s). Type 'exit' to quit.\n", convID)

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				if line == "exit" || line == "quit" {
					break
				}
				if line == "" {
					continue
				}

				env, err := ask(line)
				if err != nil {
					return goerr.Wrap(err, "failed to resolve query")
				}

				printEnvelope(c.Root().Writer, env)
			}

			fmt.Fprintf(c.Root().Writer, "\nChat session completed\n")
			return nil
		},
	}
}

func printEnvelope(w io.Writer, env *model.ResponseEnvelope) {
	switch env.Mode {
	case model.ModeDirectAnswer:
		fmt.Fprintf(w, "%s\n", env.Answer)
		for _, h := range env.Artifacts.AdditionalResources {
			fmt.Fprintf(w, "  see also: %s (%s, p.%d)\n", h.Text, h.Source, h.Page)
		}

	case model.ModeGuidedFallback:
		fmt.Fprintf(w, "%s\n", env.Artifacts.Reason)
		for _, h := range env.Artifacts.RelatedHighlights {
			fmt.Fprintf(w, "  - %s (%s, p.%d)\n", h.Text, h.Source, h.Page)
		}

	case model.ModeHardRefusal:
		fmt.Fprintf(w, "%s\n", env.Artifacts.Message)
	}
}
