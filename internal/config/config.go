// Package config loads the controller configuration from defaults, an optional
// YAML file, WEBHOUSE_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. WEBHOUSE_MQTT_BROKER.
const EnvPrefix = "webhouse"

// Config is the root configuration.
type Config struct {
	LogLevel      string `mapstructure:"log_level"`
	Listen        string `mapstructure:"listen"`
	HTTP          string `mapstructure:"http"`
	WebSocketPath string `mapstructure:"websocket_path"`

	GPIO        GPIOConfig        `mapstructure:"gpio"`
	PWM         PWMConfig         `mapstructure:"pwm"`
	LM75        LM75Config        `mapstructure:"lm75"`
	Temperature TemperatureConfig `mapstructure:"temperature"`
	Heating     HeatingConfig     `mapstructure:"heating"`
	Session     SessionConfig     `mapstructure:"session"`
	Alarm       AlarmConfig       `mapstructure:"alarm"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	InfluxDB    InfluxDBConfig    `mapstructure:"influxdb"`
}

// GPIOConfig names the gpio chip and line offsets.
type GPIOConfig struct {
	Chip string `mapstructure:"chip"`
	TV   int    `mapstructure:"tv"`
	LED  int    `mapstructure:"led"`
	PIR  int    `mapstructure:"pir"`
}

// PWMConfig holds the sysfs directories of the three pwm outputs and their period in ns.
type PWMConfig struct {
	Period uint32 `mapstructure:"period"`
	LampA  string `mapstructure:"lamp_a"`
	LampB  string `mapstructure:"lamp_b"`
	Heater string `mapstructure:"heater"`
}

// LM75Config locates the temperature sensor on the i2c bus.
type LM75Config struct {
	Bus     string `mapstructure:"bus"`
	Address int    `mapstructure:"address"`
}

// TemperatureConfig controls sampling of the measured temperature.
type TemperatureConfig struct {
	Offset         int           `mapstructure:"offset"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// HeatingConfig configures the bang-bang heating controller.
type HeatingConfig struct {
	Target        int `mapstructure:"target"`
	DebounceTicks int `mapstructure:"debounce_ticks"`
}

// SessionConfig configures the session loop.
type SessionConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// AlarmConfig configures the motion alarm task.
type AlarmConfig struct {
	IdlePoll   time.Duration `mapstructure:"idle_poll"`
	Debounce   time.Duration `mapstructure:"debounce"`
	Retry      time.Duration `mapstructure:"retry"`
	ArmOnStart bool          `mapstructure:"arm_on_start"`
}

// MQTTConfig configures the optional telemetry mirror. An empty broker disables it.
type MQTTConfig struct {
	Broker    string        `mapstructure:"broker"`
	ClientID  string        `mapstructure:"client_id"`
	Topic     string        `mapstructure:"topic"`
	Heartbeat time.Duration `mapstructure:"heartbeat"` // 0 disables
}

// InfluxDBConfig configures the optional telemetry history. An empty URL disables it.
type InfluxDBConfig struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("listen", ":5000")
	v.SetDefault("http", ":8080")
	v.SetDefault("websocket_path", "/ws")

	v.SetDefault("gpio.chip", "gpiochip0")
	v.SetDefault("gpio.tv", 60)
	v.SetDefault("gpio.led", 48)
	v.SetDefault("gpio.pir", 30)

	v.SetDefault("pwm.period", 10000000)
	v.SetDefault("pwm.lamp_a", "/sys/devices/ocp.2/pwm_test_P9_22.15")
	v.SetDefault("pwm.lamp_b", "/sys/devices/ocp.2/pwm_test_P9_14.14")
	v.SetDefault("pwm.heater", "/sys/devices/ocp.2/pwm_test_P8_19.16")

	v.SetDefault("lm75.bus", "/dev/i2c-1")
	v.SetDefault("lm75.address", 0x48)

	v.SetDefault("temperature.offset", 10)
	v.SetDefault("temperature.sample_interval", time.Second)

	v.SetDefault("heating.target", 20)
	v.SetDefault("heating.debounce_ticks", 100)

	v.SetDefault("session.interval", 10*time.Millisecond)

	v.SetDefault("alarm.idle_poll", 100*time.Millisecond)
	v.SetDefault("alarm.debounce", 2*time.Second)
	v.SetDefault("alarm.retry", time.Second)
	v.SetDefault("alarm.arm_on_start", true)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "webhouse")
	v.SetDefault("mqtt.topic", "home/webhouse")
	v.SetDefault("mqtt.heartbeat", 15*time.Minute)

	v.SetDefault("influxdb.url", "")
	v.SetDefault("influxdb.org", "webhouse")
	v.SetDefault("influxdb.bucket", "webhouse")
}

// Load builds the configuration. path may be empty; flags may be nil.
// Precedence: flags > environment > file > defaults.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// flagKeys maps command line flag names to configuration keys.
var flagKeys = map[string]string{
	"log-level":      "log_level",
	"listen":         "listen",
	"http":           "http",
	"websocket-path": "websocket_path",
	"broker":         "mqtt.broker",
	"heartbeat":      "mqtt.heartbeat",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// WebSocketEnabled reports whether clients can connect over WebSocket. The
// endpoint lives on the HTTP server, so an empty http disables it.
func (c *Config) WebSocketEnabled() bool {
	return c.HTTP != "" && c.WebSocketPath != ""
}

// Validate checks bounds that would otherwise produce a misbehaving controller.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" && !c.WebSocketEnabled() {
		errs = append(errs, errors.New("no client transport: set listen, or http and websocket_path"))
	}
	if c.WebSocketPath != "" && !strings.HasPrefix(c.WebSocketPath, "/") {
		errs = append(errs, fmt.Errorf("websocket_path %q must start with /", c.WebSocketPath))
	}
	if c.PWM.Period < 100 {
		errs = append(errs, fmt.Errorf("pwm.period %d must be >= 100", c.PWM.Period))
	}
	if c.LM75.Address < 0x03 || c.LM75.Address > 0x77 {
		errs = append(errs, fmt.Errorf("lm75.address %#x out of range", c.LM75.Address))
	}
	if c.Temperature.SampleInterval < 300*time.Millisecond {
		errs = append(errs, errors.New("temperature.sample_interval must be >= 300ms (lm75 conversion time)"))
	}
	if c.Heating.DebounceTicks < 1 {
		errs = append(errs, errors.New("heating.debounce_ticks must be >= 1"))
	}
	if c.Session.Interval <= 0 {
		errs = append(errs, errors.New("session.interval must be > 0"))
	}
	if c.Alarm.IdlePoll <= 0 || c.Alarm.Retry <= 0 || c.Alarm.Debounce < 0 {
		errs = append(errs, errors.New("alarm durations must be positive"))
	}
	if c.MQTT.Broker != "" && c.MQTT.Topic == "" {
		errs = append(errs, errors.New("mqtt.topic is required when mqtt.broker is set"))
	}
	if c.MQTT.Heartbeat < 0 {
		errs = append(errs, errors.New("mqtt.heartbeat must not be negative"))
	}
	if c.InfluxDB.URL != "" && c.InfluxDB.Bucket == "" {
		errs = append(errs, errors.New("influxdb.bucket is required when influxdb.url is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Redacted returns a copy safe for logging and the status page.
func (c Config) Redacted() Config {
	if c.InfluxDB.Token != "" {
		c.InfluxDB.Token = "*redacted*"
	}
	return c
}
