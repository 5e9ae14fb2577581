package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/anicoll/gizwits-integration/cmd"
)

func main() {
	app := &cli.App{
		Name:   "gizwits-controller",
		Usage:  "cloud session and device state synchronisation for a Gizwits account",
		Action: cmd.GizwitsCommand,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "gizwits-username",
				EnvVars:  []string{"GIZWITS_USERNAME"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "gizwits-password",
				EnvVars:  []string{"GIZWITS_PASSWORD"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "gizwits-app-id",
				EnvVars:  []string{"GIZWITS_APP_ID"},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "gizwits-region",
				EnvVars: []string{"GIZWITS_REGION"},
				Value:   "default",
			},
			&cli.BoolFlag{
				Name:    "gizwits-ssl",
				EnvVars: []string{"GIZWITS_SSL"},
				Value:   true,
			},
			&cli.BoolFlag{
				Name:    "insecure-skip-verify",
				EnvVars: []string{"GIZWITS_INSECURE_SKIP_VERIFY"},
				Value:   false,
			},
			&cli.StringSliceFlag{
				Name:    "product-types",
				EnvVars: []string{"GIZWITS_PRODUCT_TYPES"},
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				EnvVars: []string{"POLL_INTERVAL"},
				Value:   30 * time.Second,
			},
			&cli.IntFlag{
				Name:    "poll-failure-threshold",
				EnvVars: []string{"POLL_FAILURE_THRESHOLD"},
				Value:   3,
			},
			&cli.DurationFlag{
				Name:    "heartbeat-interval",
				EnvVars: []string{"HEARTBEAT_INTERVAL"},
				Value:   180 * time.Second,
			},
			&cli.StringFlag{
				Name:    "database-url",
				EnvVars: []string{"DATABASE_URL"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "migrations-folder",
				EnvVars: []string{"MIGRATIONS_FOLDER"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-host",
				EnvVars: []string{"MQTT_HOST"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-user",
				EnvVars: []string{"MQTT_USER"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-pass",
				EnvVars: []string{"MQTT_PASS"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "mqtt-topic-prefix",
				EnvVars: []string{"MQTT_TOPIC_PREFIX"},
				Value:   "gizwits",
			},
			&cli.StringFlag{
				Name:    "listen-address",
				EnvVars: []string{"LISTEN_ADDRESS"},
				Value:   "0.0.0.0:8000",
			},
			&cli.StringFlag{
				Name:    "api-token",
				EnvVars: []string{"API_TOKEN"},
				Value:   "",
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "INFO",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
