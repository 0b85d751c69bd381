package main

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/mbtalive/mbtalive/pkg/api"
	"github.com/mbtalive/mbtalive/pkg/apicache"
	"github.com/mbtalive/mbtalive/pkg/config"
	"github.com/mbtalive/mbtalive/pkg/mbta"
	"github.com/mbtalive/mbtalive/pkg/tracker"

	_ "time/tzdata"
)

func main() {
	if os.Getenv("MBTALIVE_LOG_FORMAT") != "JSON" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	if os.Getenv("MBTALIVE_DEBUG") == "YES" {
		log.Logger = log.Logger.Level(zerolog.DebugLevel)
	} else {
		log.Logger = log.Logger.Level(zerolog.InfoLevel)
	}

	app := &cli.App{
		Name:        "mbtalive",
		Description: "Live MBTA trip tracking - resolves journeys and polls the MBTA API for realtime departures",

		Commands: []*cli.Command{
			trackerCommand(),
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatal().Err(err).Send()
	}
}

func trackerCommand() *cli.Command {
	configFlag := &cli.StringFlag{
		Name:  "config",
		Value: "mbtalive.yml",
		Usage: "path to the journey configuration file",
	}

	return &cli.Command{
		Name:  "tracker",
		Usage: "Journey tracking engine",
		Subcommands: []*cli.Command{
			{
				Name:  "run",
				Usage: "track the configured journeys and serve the projection API",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						return err
					}

					client := newClient(cfg)
					manager := tracker.NewManager(client, cfg.RefreshInterval())

					if err := manager.Start(context.Background(), cfg.Journeys); err != nil {
						return err
					}
					defer manager.Stop()

					return api.SetupServer(cfg.Listen, manager, client.Cache().Stats())
				},
			},
			{
				Name:  "check",
				Usage: "validate the configuration without starting trackers",
				Flags: []cli.Flag{configFlag},
				Action: func(c *cli.Context) error {
					cfg, err := config.Load(c.String("config"))
					if err != nil {
						log.Error().Err(err).Str("code", tracker.ValidationCode(err)).Msg("Configuration invalid")
						return err
					}

					client := newClient(cfg)

					for _, journeyConfig := range cfg.Journeys {
						t := tracker.New(journeyConfig.Name, journeyConfig, client, cfg.RefreshInterval())
						if err := t.Setup(context.Background()); err != nil {
							log.Error().
								Err(err).
								Str("journey", journeyConfig.Name).
								Str("code", tracker.ValidationCode(err)).
								Msg("Journey validation failed")
							return err
						}
						log.Info().Str("journey", journeyConfig.Name).Msg("Journey valid")
					}

					return nil
				},
			},
		},
	}
}

func newClient(cfg *config.Config) *mbta.Client {
	cacheService := apicache.NewService(apicache.Options{
		StalenessFactor: cfg.StalenessCeilingFactor,
	})

	return mbta.NewClient(cfg.APIKey, cacheService)
}
