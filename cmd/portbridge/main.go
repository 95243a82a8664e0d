// If you are AI: This is the main entrypoint for the portbridge process.
// It handles configuration loading, host wiring, the consumer loop, and graceful shutdown.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"portbridge/internal/app"
	"portbridge/internal/bridge"
	"portbridge/internal/command"
	"portbridge/internal/config"
	"portbridge/internal/host/broker"
	"portbridge/internal/host/terminal"
	"portbridge/internal/host/wschan"
	"portbridge/internal/logging"
	"portbridge/internal/server"
	"portbridge/internal/svc/api"
	"portbridge/internal/svc/health"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/portbridge.example.yaml", "Path to configuration file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "portbridge: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, logCloser, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	b := bridge.New(bridge.OptionsFromConfig(cfg, logger))
	dialer := wschan.NewDialer(cfg.WebSocket, b, logger)
	b.SetDialer(dialer)

	brk, err := broker.New(cfg.PubSub, b, logger)
	if err != nil {
		return err
	}

	services := []string{"bridge", "websocket", "command"}
	var status api.BrokerStatus
	if brk != nil {
		b.SetBroker(brk)
		status = brk
		services = append(services, cfg.PubSub.Backend)
	}

	a := app.New(b, command.New(version, logger), logger)

	var driver *terminal.Driver
	if cfg.Terminal.Enabled {
		driver, err = terminal.New(b, logger)
		if err != nil {
			return fmt.Errorf("terminal: %w", err)
		}
		if err := driver.Init(); err != nil {
			return fmt.Errorf("terminal: %w", err)
		}
		a.SetStatus(driver.Status)
		services = append(services, "terminal")
	}

	var srv *server.Server
	if !cfg.Server.Disabled {
		hs := health.New()
		hs.AddCheck("bridge", func() error {
			if b.Closed() {
				return bridge.ErrClosed
			}
			return nil
		})
		apiSvc := api.NewService(b, status, version, services)
		apiSvc.SetCommander(a)
		srv = server.New(cfg, hs, apiSvc, logger)
	}

	shutdown := server.NewShutdownHandler(srv, context.Background())
	ctx := shutdown.Context()

	// Closers run in reverse: hosts stop feeding the bridge before it closes.
	shutdown.OnShutdown(b.Close)
	shutdown.OnShutdown(dialer.Stop)
	if brk != nil {
		shutdown.OnShutdown(brk.Close)
		go func() {
			if err := brk.Connect(ctx); err != nil {
				logger.Error().Err(err).Str("backend", cfg.PubSub.Backend).Msg("broker connect failed")
			}
		}()
	}
	if driver != nil {
		shutdown.OnShutdown(func() error {
			driver.Shutdown()
			return nil
		})
		go func() {
			if err := driver.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("terminal stopped")
			}
		}()
	}

	if srv != nil {
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("status server failed")
				shutdown.Trigger()
			}
		}()
	}

	if err := a.OpenPorts(cfg.Ports); err != nil {
		logger.Warn().Err(err).Msg("some ports failed to open")
	}

	go func() {
		err := a.Run(ctx)
		if err != nil && !errors.Is(err, app.ErrQuit) {
			logger.Error().Err(err).Msg("consumer loop failed")
		}
		shutdown.Trigger()
	}()

	err = shutdown.Wait()
	logEvent(logger, err).Msg("portbridge shut down")
	return err
}

func logEvent(logger zerolog.Logger, err error) *zerolog.Event {
	if err != nil {
		return logger.Error().Err(err)
	}
	return logger.Info()
}
