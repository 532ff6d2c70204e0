package cli

import (
	"context"
	"log/slog"
	"os"

	"github.com/docent-dev/docent/pkg/adapter"
	"github.com/docent-dev/docent/pkg/index"
	"github.com/docent-dev/docent/pkg/repository"
	"github.com/docent-dev/docent/pkg/usecase/query"
	"github.com/docent-dev/docent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// loggingConfig holds logger settings shared by every command.
type loggingConfig struct {
	level  string
	format string
}

func loggingFlags(cfg *loggingConfig) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("DOCENT_LOG_LEVEL"),
			Destination: &cfg.level,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       "console",
			Sources:     cli.EnvVars("DOCENT_LOG_FORMAT"),
			Destination: &cfg.format,
		},
	}
}

func (cfg *loggingConfig) newLogger() *slog.Logger {
	return logging.New(cfg.level, cfg.format, os.Stderr)
}

// config holds configuration values
type config struct {
	// Config file
	configPath string

	// Repository
	project  string
	database string

	// Adapters
	geminiProject  string
	geminiLocation string

	// Snapshot archive, optional
	bucket string

	// Conversation memory strategy
	memory string
}

// fileConfig is the optional YAML configuration file. Flags and
// environment variables take precedence; file values only fill fields
// that are still empty.
type fileConfig struct {
	Project        string `yaml:"project"`
	Database       string `yaml:"database"`
	GeminiProject  string `yaml:"gemini_project"`
	GeminiLocation string `yaml:"gemini_location"`
	Bucket         string `yaml:"bucket"`
	Memory         string `yaml:"memory"`
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML configuration file",
			Sources:     cli.EnvVars("DOCENT_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Usage:       "Cloud Storage bucket for response snapshots (disabled when empty)",
			Sources:     cli.EnvVars("DOCENT_SNAPSHOT_BUCKET"),
			Destination: &cfg.bucket,
		},
		&cli.StringFlag{
			Name:        "memory",
			Usage:       "Conversation memory strategy (ephemeral, durable)",
			Value:       "ephemeral",
			Sources:     cli.EnvVars("DOCENT_MEMORY"),
			Destination: &cfg.memory,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
	}
}

// resolve applies the optional config file to fields flags left empty.
func (cfg *config) resolve() error {
	if cfg.configPath == "" {
		return nil
	}

	content, err := os.ReadFile(cfg.configPath)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("file", cfg.configPath))
	}

	var fc fileConfig
	if err := yaml.Unmarshal(content, &fc); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("file", cfg.configPath))
	}

	if cfg.project == "" {
		cfg.project = fc.Project
	}
	if fc.Database != "" && cfg.database == "(default)" {
		cfg.database = fc.Database
	}
	if cfg.geminiProject == "" {
		cfg.geminiProject = fc.GeminiProject
	}
	if cfg.bucket == "" {
		cfg.bucket = fc.Bucket
	}
	if fc.GeminiLocation != "" && cfg.geminiLocation == "us-central1" {
		cfg.geminiLocation = fc.GeminiLocation
	}
	if fc.Memory != "" && cfg.memory == "ephemeral" {
		cfg.memory = fc.Memory
	}

	return nil
}

// newRepository creates a new repository instance
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	repo, err := repository.New(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newGemini creates a new Gemini adapter instance
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}
	return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation)
}

// newIndex creates the document index backed by Firestore vector search
func (cfg *config) newIndex(ctx context.Context, gemini adapter.Gemini) (index.Index, error) {
	idx, err := index.NewFirestore(ctx, cfg.project, cfg.database, gemini)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create document index")
	}
	return idx, nil
}

// newUseCase wires the full query pipeline from the resolved config.
func (cfg *config) newUseCase(ctx context.Context) (*query.UseCase, repository.Repository, error) {
	if err := cfg.resolve(); err != nil {
		return nil, nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, nil, err
	}

	gemini, err := cfg.newGemini(ctx)
	if err != nil {
		return nil, nil, err
	}

	idx, err := cfg.newIndex(ctx, gemini)
	if err != nil {
		return nil, nil, err
	}

	var opts []query.Option

	switch cfg.memory {
	case "ephemeral":
	case "durable":
		opts = append(opts, query.WithMemory(query.NewDurableMemory(repo)))
	default:
		return nil, nil, goerr.New("unknown memory strategy", goerr.V("memory", cfg.memory))
	}

	if cfg.bucket != "" {
		archive, err := adapter.NewStorage(ctx, cfg.bucket)
		if err != nil {
			return nil, nil, goerr.Wrap(err, "failed to create snapshot archive")
		}
		opts = append(opts, query.WithSnapshotArchive(archive))
	}

	return query.New(repo, idx, gemini, opts...), repo, nil
}
