package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/aisouls/backend/internal/config"
	"github.com/aisouls/backend/internal/model/persona"
	"github.com/aisouls/backend/internal/service/ai"
	"github.com/aisouls/backend/internal/service/chat"
)

var (
	version  = "dev"
	revision = "none"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	app := &cli.Command{
		Name:    "souls",
		Usage:   "Talk with historical figures from the terminal",
		Version: fmt.Sprintf("%s (rev: %s)", version, revision),
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"V"},
				Usage:   "Enable verbose logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:    "personas",
				Usage:   "List available personas",
				Aliases: []string{"ls"},
				Action:  handlePersonas,
			},
			{
				Name:   "chat",
				Usage:  "Start an interactive conversation",
				Action: handleChat,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "persona",
						Aliases: []string{"p"},
						Usage:   "Persona name or id (defaults to SOULS_DEFAULT_PERSONA or the first persona)",
					},
				},
			},
		},
		Before: func(ctx context.Context, c *cli.Command) error {
			if err := godotenv.Load(); err != nil {
				log.Debug().Err(err).Msg("no .env file loaded")
			}
			if c.Bool("verbose") {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				zerolog.SetGlobalLevel(zerolog.WarnLevel)
			}
			zerolog.DefaultContextLogger = &log.Logger
			return nil
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("souls failed")
	}
}

func handlePersonas(_ context.Context, _ *cli.Command) error {
	return printPersonas(os.Stdout, persona.NewRegistry(persona.Seed()))
}

func handleChat(ctx context.Context, c *cli.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	personas := persona.NewRegistry(persona.Seed())
	completer, err := ai.NewCompleter(ctx, cfg.AI)
	if err != nil {
		return err
	}

	chatSvc := chat.NewService(personas, ai.NewPromptAssembler(), completer, chat.Options{
		TurnLimit:      cfg.Chat.TurnLimit,
		ResetPolicy:    cfg.Chat.ResetPolicy,
		DefaultPersona: cfg.Chat.DefaultPersona,
	})

	repl := newREPL(chatSvc, os.Stdin, os.Stdout)
	return repl.Run(ctx, c.String("persona"))
}
