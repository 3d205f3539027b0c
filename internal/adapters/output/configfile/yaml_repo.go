package configfile

import (
	"context"
	"fmt"
	"net"
	"os"
	"regexp"
	"sync"

	"lighting-bridge/internal/domain/model"
	"lighting-bridge/internal/domain/translator"
	"lighting-bridge/internal/ports"

	"gopkg.in/yaml.v3"
)

var envRef = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// YAMLConfigRepository loads the bridge configuration from a YAML file.
// Keys missing from the file keep their defaults.
type YAMLConfigRepository struct {
	filepath string
	mu       sync.RWMutex
}

func NewYAMLConfigRepository(filepath string) *YAMLConfigRepository {
	return &YAMLConfigRepository{filepath: filepath}
}

var _ ports.ConfigRepository = (*YAMLConfigRepository)(nil)

func (r *YAMLConfigRepository) Get(ctx context.Context) (*model.Config, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg := model.DefaultConfig()

	data, err := os.ReadFile(r.filepath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else if err := yaml.Unmarshal([]byte(expandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.filepath, err)
	}

	if err := normalize(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", r.filepath, err)
	}
	return cfg, nil
}

func normalize(cfg *model.Config) error {
	switch cfg.Bus.Type {
	case "":
		cfg.Bus.Type = model.BusTypeSystem
	case model.BusTypeSystem, model.BusTypeSession:
	default:
		return fmt.Errorf("unknown bus type %q", cfg.Bus.Type)
	}
	if cfg.Bus.Service == "" {
		cfg.Bus.Service = model.DefaultBusService
	}
	if cfg.Bus.Path == "" {
		cfg.Bus.Path = model.DefaultBusPath
	}
	if cfg.Bus.Interface == "" {
		cfg.Bus.Interface = cfg.Bus.Service + ".DeviceControl"
	}
	if cfg.Bus.CallTimeout <= 0 {
		cfg.Bus.CallTimeout = model.Duration(model.DefaultCallTimeout)
	}
	if cfg.Notifications.QueueSize <= 0 {
		cfg.Notifications.QueueSize = model.DefaultFeedbackQueue
	}
	if cfg.HTTP.Listen == "" {
		cfg.HTTP.Listen = model.DefaultHTTPListen
	}
	port, err := listenPort(cfg.HTTP.Listen)
	if err != nil {
		return err
	}
	switch {
	case cfg.SSDP.Port == 0:
		cfg.SSDP.Port = port
	case cfg.HTTP.Enabled && cfg.SSDP.Port != port:
		return fmt.Errorf("ssdp.port %d does not match http.listen %q", cfg.SSDP.Port, cfg.HTTP.Listen)
	}
	if cfg.Bridge.Name == "" {
		cfg.Bridge.Name = model.DefaultBridgeName
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = model.DefaultLogLevel
	}
	return translator.NewScale(cfg.Scale).Validate()
}

func listenPort(listen string) (int, error) {
	_, port, err := net.SplitHostPort(listen)
	if err != nil {
		return 0, fmt.Errorf("http.listen %q: %w", listen, err)
	}
	n, err := net.LookupPort("tcp", port)
	if err != nil {
		return 0, fmt.Errorf("http.listen %q: %w", listen, err)
	}
	return n, nil
}

// expandEnv replaces ${VAR} and ${VAR:default}.
func expandEnv(input string) string {
	return envRef.ReplaceAllStringFunc(input, func(match string) string {
		parts := envRef.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		if len(parts) >= 3 {
			return parts[2]
		}
		return ""
	})
}
