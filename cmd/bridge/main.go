package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	bridgehttp "lighting-bridge/internal/adapters/input/http"
	"lighting-bridge/internal/adapters/input/ssdp"
	"lighting-bridge/internal/adapters/output/configfile"
	"lighting-bridge/internal/adapters/output/devicectl"
	"lighting-bridge/internal/dispatch"
	"lighting-bridge/internal/domain/model"
	"lighting-bridge/internal/domain/service"
	"lighting-bridge/internal/domain/translator"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	envErr := godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := configfile.NewYAMLConfigRepository(configPath).Get(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	ip := cfg.SSDP.AdvertiseIP
	if ip == "" {
		ip = os.Getenv("LOCAL_IP")
	}
	if ip == "" {
		ip = getLocalIP()
	}
	if ip == "" && cfg.SSDP.Enabled {
		logger.Fatal("Could not determine local IP. Set ssdp.advertise_ip or LOCAL_IP.")
	}

	bridgeID, err := bridgeUUID(cfg.Bridge)
	if err != nil {
		logger.Fatal("Invalid bridge uuid", zap.Error(err))
	}

	logger.Info("Starting lighting bridge",
		zap.String("ip", ip),
		zap.String("bus", string(cfg.Bus.Type)),
		zap.String("service", cfg.Bus.Service),
		zap.Bool("feedback", cfg.Notifications.Feedback))

	loop := dispatch.NewLoop(logger)
	loop.Start()
	defer loop.Stop()

	client := devicectl.NewClient(loop, devicectl.DialerFor(cfg.Bus.Type), devicectl.OptionsFromConfig(cfg), logger)
	defer client.Close()

	manager := service.NewLightingManager(client, logger)
	defer manager.Close()

	changes := service.NewChangeHandler(manager, service.NewAttributeBinding(manager),
		translator.NewScale(cfg.Scale), cfg.Notifications, logger)
	manager.SetChangeHandler(changes.HandleLightChanged)
	go changes.Run(ctx)

	hub := bridgehttp.NewEventHub(logger)
	defer hub.Close()
	manager.SetCallbacks(hub.Callbacks(manager))

	if err := manager.Init(ctx); err != nil {
		logger.Error("Light service unavailable, continuing with local state", zap.Error(err))
	}

	var httpServer *bridgehttp.Server
	if cfg.HTTP.Enabled {
		info := bridgehttp.BridgeInfo{Name: cfg.Bridge.Name, UUID: bridgeID, IP: ip, Port: cfg.SSDP.Port}
		httpServer = bridgehttp.NewServer(manager, hub, info, logger)
		go func() {
			if err := httpServer.ListenAndServe(cfg.HTTP.Listen); err != nil {
				logger.Error("HTTP server error", zap.Error(err))
				cancel()
			}
		}()
	}

	if cfg.SSDP.Enabled {
		ssdpServer := ssdp.NewServer(ip, cfg.SSDP.Port, bridgeID, logger)
		go func() {
			if err := ssdpServer.Start(ctx); err != nil {
				logger.Error("SSDP server error", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("Shutting down")

	if httpServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP shutdown failed", zap.Error(err))
		}
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	if lvl.Level() == zap.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = lvl
	return cfg.Build()
}

// bridgeUUID is stable across restarts so paired assistants keep the light.
func bridgeUUID(cfg model.BridgeConfig) (uuid.UUID, error) {
	if cfg.UUID != "" {
		return uuid.Parse(cfg.UUID)
	}
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(cfg.Name)), nil
}

func getLocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return ""
}
