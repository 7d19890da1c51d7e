package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/ffscout/scouter/internal/config"
	"github.com/ffscout/scouter/internal/logging"
)

type metadata struct {
	configFile string
	config     config.Config
	log        *logrus.Logger
	w          io.Writer
}

var version = "zero" // do not change this value

func main() {
	app := cli.NewApp()
	app.Name = "scouter"
	app.Usage = "batched, rate limited player estimate lookups"
	app.Version = version

	app.Writer = os.Stdout
	app.ErrWriter = os.Stderr

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Value:  "",
			Usage:  " configuration `FILE`",
			EnvVar: config.EnvConfigPath,
		},
		cli.StringFlag{
			Name:  "env-file",
			Value: ".env",
			Usage: " load environment variables from `FILE` if it exists",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "serve",
			Usage:  "run the HTTP server",
			Action: runServe,
		},
		{
			Name:      "lookup",
			Usage:     "look up estimates for one or more players",
			ArgsUsage: "ID...",
			Flags: []cli.Flag{
				cli.DurationFlag{
					Name:  "timeout, t",
					Value: 0,
					Usage: " give up after `DURATION`, 0 waits forever",
				},
			},
			Action: runLookup,
		},
		{
			Name:   "dump",
			Usage:  "print every cached entry",
			Action: runDump,
		},
		{
			Name:   "sweep",
			Usage:  "delete expired cache entries",
			Action: runSweep,
		},
	}
	app.Before = func(c *cli.Context) error {
		if err := godotenv.Load(c.GlobalString("env-file")); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}

		// The config flag is read again since the env file may have set it.
		configFile := c.GlobalString("config")
		if configFile == "" {
			configFile = os.Getenv(config.EnvConfigPath)
		}
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		log, err := logging.Setup(cfg.Logging)
		if err != nil {
			return err
		}

		c.App.Metadata = map[string]interface{}{
			"config": &metadata{
				configFile: configFile,
				config:     cfg,
				log:        log,
				w:          c.App.Writer,
			},
		}
		return nil
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(app.ErrWriter, "terminated with error: %s\n", err)
		os.Exit(1)
	}
}

func getMetadata(c *cli.Context) *metadata {
	return c.App.Metadata["config"].(*metadata)
}
