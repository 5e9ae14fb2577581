package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang-migrate/migrate/v4"
	"github.com/jackc/pgx/v5"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anicoll/gizwits-integration/internal/pkg/config"
	"github.com/anicoll/gizwits-integration/internal/pkg/database"
	"github.com/anicoll/gizwits-integration/internal/pkg/database/migration"
	"github.com/anicoll/gizwits-integration/internal/pkg/gizwits"
	"github.com/anicoll/gizwits-integration/internal/pkg/mqtt"
	"github.com/anicoll/gizwits-integration/internal/pkg/publisher"
	"github.com/anicoll/gizwits-integration/internal/pkg/server"
)

func GizwitsCommand(ctx *cli.Context) error {
	cfg := &config.Config{
		GizwitsCfg: &config.GizwitsConfig{
			Username:             ctx.String("gizwits-username"),
			Password:             ctx.String("gizwits-password"),
			AppID:                ctx.String("gizwits-app-id"),
			Region:               ctx.String("gizwits-region"),
			Ssl:                  ctx.Bool("gizwits-ssl"),
			InsecureSkipVerify:   ctx.Bool("insecure-skip-verify"),
			PollInterval:         ctx.Duration("poll-interval"),
			PollFailureThreshold: ctx.Int("poll-failure-threshold"),
			HeartbeatInterval:    ctx.Duration("heartbeat-interval"),
			ProductTypes:         ctx.StringSlice("product-types"),
		},
		MqttCfg: &config.MqttConfig{
			Host:        ctx.String("mqtt-host"),
			Username:    ctx.String("mqtt-user"),
			Password:    ctx.String("mqtt-pass"),
			TopicPrefix: ctx.String("mqtt-topic-prefix"),
		},
		DatabaseURL:      ctx.String("database-url"),
		MigrationsFolder: ctx.String("migrations-folder"),
		ListenAddress:    ctx.String("listen-address"),
		APIToken:         ctx.String("api-token"),
		LogLevel:         ctx.String("log-level"),
	}

	return run(ctx.Context, cfg)
}

func run(ctx context.Context, cfg *config.Config) error {
	errorChan := make(chan error, 1000)
	var err error

	eg, ctx := errgroup.WithContext(ctx)
	logCfg := zap.NewProductionConfig()

	logCfg.Level, err = zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	logger := zap.Must(logCfg.Build(zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)))
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	var history server.HistoryReader
	if cfg.DatabaseURL != "" {
		if cfg.MigrationsFolder != "" {
			if err := migration.Migrate(cfg.DatabaseURL, cfg.MigrationsFolder); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return err
			}
		}
		conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer conn.Close(ctx)
		db := database.NewDatabase(ctx, conn)
		history = db

		if err := publisher.Register("postgres", db); err != nil {
			return err
		}
		eg.Go(func() error {
			return cronDbCleanup(ctx, db, errorChan)
		})
	}

	if cfg.MqttCfg.Host != "" {
		opts := paho_mqtt.NewClientOptions().
			AddBroker(cfg.MqttCfg.Host).
			SetUsername(cfg.MqttCfg.Username).
			SetPassword(cfg.MqttCfg.Password)
		mqttSvc := mqtt.New(paho_mqtt.NewClient(opts), cfg.MqttCfg.TopicPrefix)
		if err := mqttSvc.Connect(); err != nil {
			return err
		}
		if err := publisher.Register("mqtt", mqttSvc); err != nil {
			return err
		}
	}

	manager := gizwits.New(cfg.GizwitsCfg, errorChan)
	defer manager.Logout()

	eg.Go(func() error {
		if err := manager.Login(ctx); err != nil {
			return err
		}
		if err := manager.Refresh(ctx); err != nil {
			return err
		}
		if err := manager.SubscribeAll(ctx); err != nil {
			logger.Error("initial subscription incomplete, poll remains active", zap.Error(err))
		}
		return pollLoop(ctx, manager, cfg.GizwitsCfg.PollInterval, errorChan)
	})

	eg.Go(func() error {
		for {
			expired := manager.SessionExpired()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-expired:
				logger.Warn("session token expired, re-authentication in progress")
			}
		}
	})

	eg.Go(func() error {
		api, err := server.New(manager, history, cfg.APIToken)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Handler:      api.Router(),
			Addr:         cfg.ListenAddress,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		go func() {
			<-ctx.Done()
			_ = srv.Shutdown(context.Background())
		}()
		return srv.ListenAndServe()
	})

	eg.Go(func() error {
		// handle any async errors from service
		for {
			select {
			case err := <-errorChan:
				if errors.Is(err, gizwits.ErrSessionExpired) {
					logger.Error("session expired permanently", zap.Error(err))
					return err
				}
				if errors.Is(err, errCron) {
					logger.Error("cron error", zap.Error(err))
					return err
				}
				logger.Error("async error", zap.Error(err))
			case <-ctx.Done():
				logger.Info("context done")
				return ctx.Err()
			}
		}
	})

	return eg.Wait()
}

var errCron = errors.New("cron error")

// pollLoop keeps the poll transport on a fixed schedule; each cycle also
// re-subscribes all devices so lost push connections rebuild lazily.
func pollLoop(ctx context.Context, manager *gizwits.Manager, interval time.Duration, errChan chan error) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", interval), func() {
		if err := manager.Refresh(ctx); err != nil {
			errChan <- err
			return
		}
		if err := manager.SubscribeAll(ctx); err != nil {
			zap.L().Warn("re-subscription incomplete", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	c.Run()
	return ctx.Err()
}

func cronDbCleanup(ctx context.Context, db *database.Database, errChan chan error) error {
	if err := db.Cleanup(ctx); err != nil {
		return err
	}

	c := cron.New()
	if _, err := c.AddFunc("0 3 * * *", func() {
		if err := db.Cleanup(context.Background()); err != nil {
			zap.L().Error("error cleaning up database", zap.Error(err))
			errChan <- errCron
			return
		}
		zap.L().Info("cleaned up attribute history")
	}); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
	c.Run()
	return nil
}
