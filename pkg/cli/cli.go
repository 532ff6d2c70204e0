package cli

import (
	"context"

	"github.com/docent-dev/docent/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	var logCfg loggingConfig

	cmd := &cli.Command{
		Name:  "docent",
		Usage: "Grounded document QA service",
		Flags: loggingFlags(&logCfg),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			logger := logCfg.newLogger()
			logging.SetDefault(logger)
			return logging.With(ctx, logger), nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			queryCommand(),
			chatCommand(),
			conversationsCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
