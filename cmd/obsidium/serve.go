package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/obsidium-dev/obsidium/internal/config"
	"github.com/obsidium-dev/obsidium/internal/errors"
	"github.com/obsidium-dev/obsidium/pkg/admin"
	"github.com/obsidium-dev/obsidium/pkg/auth"
	"github.com/obsidium-dev/obsidium/pkg/nbt"
	"github.com/obsidium-dev/obsidium/pkg/packet"
	"github.com/obsidium-dev/obsidium/pkg/server"
	"github.com/obsidium-dev/obsidium/pkg/transport"
	"github.com/obsidium-dev/obsidium/pkg/world"
)

// shutdownTimeout bounds the graceful stop after a signal.
const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var (
		dir      string
		address  string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the server",
		Long: `Run the server with the settings of obsidium.json.

Without a config file the defaults are used: TCP on :25565, the admin
surface on 127.0.0.1:25580, and an in-memory flat world.

Examples:
  obsidium serve
  obsidium serve --config ./server
  obsidium serve --address :25570 --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(dir)
			if err != nil {
				return err
			}
			if address != "" {
				cfg.Server.Address = address
			}
			if logLevel != "" {
				cfg.Log.Level = logLevel
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&dir, "config", "c", ".", "Directory containing obsidium.json")
	cmd.Flags().StringVarP(&address, "address", "a", "", "TCP listen address (default from obsidium.json)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")

	return cmd
}

// loadConfig reads dir/obsidium.json, falling back to defaults when the
// file does not exist.
func loadConfig(dir string) (*config.Config, error) {
	cfg, err := config.Load(dir)
	if errors.HasCode(err, "E100") {
		info("No %s in %s, using defaults", config.ConfigFileName, dir)
		return config.New(), nil
	}
	return cfg, err
}

func newLogger(cfg config.LogConfig, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == config.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openWorld opens the chunk store named by cfg.
func openWorld(cfg *config.Config) (world.Store, error) {
	switch cfg.World.Backend {
	case config.BackendSQLite:
		st, err := world.OpenSQLite(cfg.Resolve(cfg.World.Path))
		if err != nil {
			return nil, errors.New("E140").WithDetail(cfg.World.Path).Wrap(err)
		}
		return st, nil
	case config.BackendS3:
		client := world.NewS3Client(cfg.World.Region, cfg.World.Endpoint)
		return world.NewS3Store(client, cfg.World.Bucket, cfg.World.Prefix), nil
	default:
		return world.NewMemoryStore(), nil
	}
}

// openBans opens the ban list named by cfg. The returned close func is
// never nil.
func openBans(cfg *config.Config) (auth.BanList, func() error, error) {
	if cfg.Bans.Backend != config.BackendSQLite {
		return auth.NewMemoryBanList(), func() error { return nil }, nil
	}
	l, err := auth.OpenSQLBanList(cfg.Resolve(cfg.Bans.Path))
	if err != nil {
		return nil, nil, errors.New("E141").WithDetail(cfg.Bans.Path).Wrap(err)
	}
	return l, l.Close, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	level, _ := cfg.LogLevel()
	logger := newLogger(cfg.Log, level)

	sc, err := cfg.ToServerConfig()
	if err != nil {
		return err
	}

	store, err := openWorld(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	bans, closeBans, err := openBans(cfg)
	if err != nil {
		return err
	}
	defer closeBans()

	resources := server.DefaultResources()
	if cfg.RegistryData != "" {
		data, err := server.LoadRegistryFile(cfg.Resolve(cfg.RegistryData))
		if err != nil {
			return errors.New("E105").WithDetail(cfg.RegistryData).Wrap(err)
		}
		resources.Data = data
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	srv, err := server.New(sc,
		server.WithLogger(logger),
		server.WithBanList(bans),
		server.WithWorld(world.NewStoreProvider(store, world.DefaultFlat(), logger)),
		server.WithResources(resources),
		server.WithMetrics(server.NewMetrics(server.WithRegisterer(reg))),
	)
	if err != nil {
		return errors.New("E102").Wrap(err)
	}

	listeners, err := listen(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Events must be drained until Shutdown returns; departing
	// connections block on the channel.
	eventsDone := make(chan struct{})
	eventsCtx, stopEvents := context.WithCancel(context.Background())
	go func() {
		logEvents(eventsCtx, srv, logger)
		close(eventsDone)
	}()

	// Connections outlive the signal so Shutdown can disconnect them
	// with a reason.
	connCtx := context.WithoutCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, ln := range listeners {
		g.Go(func() error {
			if err := srv.Serve(connCtx, ln); !stderrors.Is(err, server.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	var adminSrv *http.Server
	if cfg.Admin.Address != "" {
		adminSrv = &http.Server{
			Addr:              cfg.Admin.Address,
			Handler:           admin.New(srv, admin.WithGatherer(reg), admin.WithLogger(logger)),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("admin listening", "address", cfg.Admin.Address)
			if err := adminSrv.ListenAndServe(); !stderrors.Is(err, http.ErrServerClosed) {
				return errors.New("E120").WithDetail(cfg.Admin.Address).Wrap(err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if adminSrv != nil {
			adminSrv.Shutdown(sctx)
		}
		if err := srv.Shutdown(sctx); err != nil && !stderrors.Is(err, server.ErrServerClosed) {
			logger.Warn("shutdown incomplete", "error", err)
		}
		return nil
	})

	err = g.Wait()
	stopEvents()
	<-eventsDone
	if err != nil {
		return errors.New("E160").Wrap(err)
	}
	logger.Info("server stopped")
	return nil
}

// listen opens every configured game listener.
func listen(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]net.Listener, error) {
	var lns []net.Listener
	closeAll := func() {
		for _, ln := range lns {
			ln.Close()
		}
	}

	tcp, err := transport.ListenTCP(ctx, cfg.Server.Address)
	if err != nil {
		return nil, errors.New("E120").WithDetail(cfg.Server.Address).Wrap(err)
	}
	lns = append(lns, tcp)

	if cfg.WebSocket.Address != "" {
		ws, err := transport.ListenWebSocket(ctx, cfg.WebSocket.Address, transport.WebSocketConfig{
			Path:   cfg.WebSocket.Path,
			Logger: logger,
		})
		if err != nil {
			closeAll()
			return nil, errors.New("E120").WithDetail(cfg.WebSocket.Address).Wrap(err)
		}
		lns = append(lns, ws)
	}

	if cfg.QUIC.Address != "" {
		host, _, _ := net.SplitHostPort(cfg.QUIC.Address)
		tlsConf, err := transport.LoadTLS(cfg.Resolve(cfg.QUIC.CertFile), cfg.Resolve(cfg.QUIC.KeyFile), hostsFor(host)...)
		if err != nil {
			closeAll()
			return nil, errors.New("E121").Wrap(err)
		}
		q, err := transport.ListenQUIC(cfg.QUIC.Address, tlsConf, logger)
		if err != nil {
			closeAll()
			return nil, errors.New("E120").WithDetail(cfg.QUIC.Address).Wrap(err)
		}
		lns = append(lns, q)
	}
	return lns, nil
}

func hostsFor(host string) []string {
	if host == "" {
		return nil
	}
	return []string{host}
}

// logEvents consumes the event stream until ctx ends.
func logEvents(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-srv.Events():
			switch ev.Kind {
			case server.EventJoined:
				logger.Info("player joined", "conn_id", ev.ConnID, "player", ev.Player.Name, "uuid", ev.Player.UUID.String())
			case server.EventLeft:
				attrs := []any{"conn_id", ev.ConnID, "player", ev.Player.Name}
				if ev.Err != nil {
					attrs = append(attrs, "error", ev.Err)
				}
				logger.Info("player left", attrs...)
			case server.EventPacket:
				handlePacket(srv, logger, ev)
			}
		}
	}
}

// handlePacket relays chat to every player and logs the rest.
func handlePacket(srv *server.Server, logger *slog.Logger, ev server.Event) {
	if chat, ok := ev.Packet.(*packet.ChatMessage); ok {
		logger.Info("chat", "player", ev.Player.Name, "message", chat.Message)
		line := fmt.Sprintf("<%s> %s", ev.Player.Name, chat.Message)
		srv.Broadcast(&packet.SystemChat{Content: nbt.Text(line)})
		return
	}
	logger.Debug("packet", "player", ev.Player.Name, "type", fmt.Sprintf("%T", ev.Packet))
}
