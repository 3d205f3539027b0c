package model

import (
	"time"

	"gopkg.in/yaml.v3"
)

type BusType string

const (
	BusTypeSystem  BusType = "system"
	BusTypeSession BusType = "session"
)

const (
	DefaultBusService    = "com.sktnugu.devicectl"
	DefaultBusPath       = "/DeviceControl"
	DefaultBusInterface  = DefaultBusService + ".DeviceControl"
	DefaultCallTimeout   = 1000 * time.Millisecond
	DefaultFeedbackQueue = 16
	DefaultHTTPListen    = ":80"
	DefaultBridgeName    = "devicectl"
	DefaultLogLevel      = "info"
)

type BusConfig struct {
	Type        BusType  `yaml:"type"`
	Service     string   `yaml:"service"`
	Path        string   `yaml:"path"`
	Interface   string   `yaml:"interface"`    // Service + ".DeviceControl" when unset
	CallTimeout Duration `yaml:"call_timeout"` // Bound on every synchronous daemon call
}

// ScaleConfig holds the two brightness domains. The internal one is the
// device-abstraction level, the external one is what the daemon understands.
type ScaleConfig struct {
	InternalMin uint32 `yaml:"internal_min"`
	InternalMax uint32 `yaml:"internal_max"`
	ExternalMin uint32 `yaml:"external_min"`
	ExternalMax uint32 `yaml:"external_max"`
}

type NotificationConfig struct {
	Feedback  bool `yaml:"feedback"`   // Apply daemon-side changes to local attributes
	QueueSize int  `yaml:"queue_size"` // Pending feedback updates before dropping
}

type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type SSDPConfig struct {
	Enabled     bool   `yaml:"enabled"`
	AdvertiseIP string `yaml:"advertise_ip"`
	Port        int    `yaml:"port"` // Advertised HTTP port, taken from http.listen when unset
}

type BridgeConfig struct {
	Name string `yaml:"name"`
	UUID string `yaml:"uuid"` // Derived from Name when empty
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Bus           BusConfig          `yaml:"bus"`
	Scale         ScaleConfig        `yaml:"scale"`
	Notifications NotificationConfig `yaml:"notifications"`
	HTTP          HTTPConfig         `yaml:"http"`
	SSDP          SSDPConfig         `yaml:"ssdp"`
	Bridge        BridgeConfig       `yaml:"bridge"`
	Log           LogConfig          `yaml:"log"`
}

// DefaultConfig returns the values a config file overrides. Derived keys are
// left empty and filled once the file is read.
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			Type:        BusTypeSystem,
			Service:     DefaultBusService,
			Path:        DefaultBusPath,
			CallTimeout: Duration(DefaultCallTimeout),
		},
		Scale: ScaleConfig{InternalMin: 1, InternalMax: 254, ExternalMin: 1, ExternalMax: 5},
		Notifications: NotificationConfig{
			QueueSize: DefaultFeedbackQueue,
		},
		HTTP:   HTTPConfig{Enabled: true, Listen: DefaultHTTPListen},
		Bridge: BridgeConfig{Name: DefaultBridgeName},
		Log:    LogConfig{Level: DefaultLogLevel},
	}
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}
