package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/inkwell2d/netphys/internal/config"
	"github.com/inkwell2d/netphys/internal/netmsg"
	"github.com/inkwell2d/netphys/internal/replica"
	"github.com/inkwell2d/netphys/internal/transport"
)

const defaultConfigPath = "config/physd.yaml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("physd starting", "log_level", cfg.LogLevel, "update_rate", cfg.Replication.UpdateRate)

	var (
		tr  transport.Transport
		hub *transport.Hub
	)
	if cfg.NATS.URL != "" {
		nt, err := transport.DialNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, cfg.NATS.Session)
		if err != nil {
			return fmt.Errorf("nats transport: %w", err)
		}
		tr = nt
		slog.Info("using nats transport", "url", cfg.NATS.URL)
	} else {
		hub = transport.NewHub()
		tr = hub
		slog.Info("using websocket transport", "addr", cfg.Server.Addr())
	}
	defer tr.Close()

	sess := replica.NewSession(replica.Options{
		Transport:   tr,
		IDs:         transport.NewIDGenerator(1),
		Server:      true,
		Replication: cfg.Replication,
	})

	// Transports deliver from their own goroutines; the simulation loop is
	// the only goroutine touching the session, so envelopes are queued and
	// drained there.
	envCh := make(chan netmsg.Envelope, 1024)
	tr.SetHandler(func(env netmsg.Envelope) {
		select {
		case envCh <- env:
		default:
			slog.Warn("inbound queue full, dropping envelope", "op", env.Op.String())
		}
	})

	world, err := sess.NewWorld(0, 0)
	if err != nil {
		return fmt.Errorf("creating world: %w", err)
	}
	slog.Info("world created", "id", world)

	g, ctx := errgroup.WithContext(ctx)

	if hub != nil {
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		srv := &http.Server{Addr: cfg.Server.Addr(), Handler: mux}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("websocket listener: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		interval := time.Second / time.Duration(cfg.Replication.UpdateRate)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-ctx.Done():
				return nil
			case env := <-envCh:
				sess.HandleEnvelope(env)
			case now := <-ticker.C:
				for drained := false; !drained; {
					select {
					case env := <-envCh:
						sess.HandleEnvelope(env)
					default:
						drained = true
					}
				}
				if err := sess.UpdateWorld(world, now.Sub(last).Seconds()); err != nil {
					return fmt.Errorf("updating world: %w", err)
				}
				last = now
			}
		}
	})

	return g.Wait()
}

func loadConfig() (config.Config, error) {
	path := os.Getenv("NETPHYS_CONFIG")
	if path == "" {
		path = defaultConfigPath
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
