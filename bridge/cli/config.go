// Package cli merges flags, the config file and the environment into a Config.
package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"pad2can/bridge/conditioning"
	"pad2can/bridge/pipeline"
)

type SerialConfig struct {
	Port    string `mapstructure:"port"`
	Baud    int    `mapstructure:"baud"`
	Bitrate int    `mapstructure:"bitrate"`
}

// Config is the merged result of defaults, the config file, PAD2CAN_*
// environment variables and command-line flags (highest precedence last).
type Config struct {
	Iface     string        `mapstructure:"iface"`
	Transport string        `mapstructure:"transport"`
	Serial    SerialConfig  `mapstructure:"serial"`
	Map       string        `mapstructure:"map"`
	Source    string        `mapstructure:"source"`
	Profile   string        `mapstructure:"profile"`
	Joystick  int           `mapstructure:"joystick"`
	RateHz    float64       `mapstructure:"rate_hz"`
	Duration  time.Duration `mapstructure:"duration"`
	Deadzone  float64       `mapstructure:"deadzone"`
	Log       string        `mapstructure:"log"`
	LogFile   string        `mapstructure:"log_file"`
	Monitor   bool          `mapstructure:"monitor"`

	Frames pipeline.FrameNames       `mapstructure:"frames"`
	Engine conditioning.EngineConfig `mapstructure:"engine"`
	Axes   pipeline.AxisMapping      `mapstructure:"axes"`
}

func Default() Config {
	engine := conditioning.DefaultEngineConfig()
	engine.RadiusTable = nil // nil selects the engine default

	return Config{
		Iface:     "vcan0",
		Transport: "socketcan",
		Serial:    SerialConfig{Baud: 115200, Bitrate: 500000},
		Map:       "config/can/can_map.csv",
		Source:    "sdl",
		RateHz:    50,
		Deadzone:  0.05,
		Log:       "info",
		LogFile:   "pad2can.log",
		Frames:    pipeline.DefaultFrameNames(),
		Engine:    engine,
		Axes:      pipeline.DefaultAxisMapping(),
	}
}

func newFlagSet(def Config) *pflag.FlagSet {
	fs := pflag.NewFlagSet("pad2can", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "Config file (YAML)")
	fs.String("iface", def.Iface, "SocketCAN interface name")
	fs.StringP("transport", "t", def.Transport, "socketcan|slcan|log")
	fs.String("serial.port", def.Serial.Port, "SLCAN serial port")
	fs.Int("serial.baud", def.Serial.Baud, "SLCAN serial baud rate")
	fs.Int("serial.bitrate", def.Serial.Bitrate, "SLCAN CAN bit rate")
	fs.StringP("map", "m", def.Map, "CAN map (.csv or .dbc)")
	fs.StringP("source", "s", def.Source, "sdl|replay")
	fs.StringP("profile", "p", def.Profile, "Replay profile (YAML)")
	fs.Int("joystick", def.Joystick, "SDL joystick slot")
	fs.Float64("rate_hz", def.RateHz, "Frame rate")
	fs.Duration("duration", def.Duration, "Stop after this long (0 runs until interrupted)")
	fs.Float64("deadzone", def.Deadzone, "Stick deadzone")
	fs.StringP("log", "l", def.Log, "trace|debug|info|warn|error|critical")
	fs.String("log_file", def.LogFile, "Log file")
	fs.Bool("monitor", def.Monitor, "Decode bridge frames from the bus instead of transmitting")
	return fs
}

// Load parses args and merges them with the config file and environment.
func Load(args []string) (Config, error) {
	cfg := Default()

	fs := newFlagSet(cfg)
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	v := viper.New()
	v.SetEnvPrefix("PAD2CAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return cfg, fmt.Errorf("bind flags: %w", err)
	}
	setDefaults(v, cfg)

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	return cfg, cfg.Validate()
}

// setDefaults registers the nested scalar keys that have no flag, so that
// AutomaticEnv resolves them. axes.buttons and engine.radius_table are lists
// and can only be set from the config file.
func setDefaults(v *viper.Viper, def Config) {
	defaults := map[string]any{
		"frames.sticks":       def.Frames.Sticks,
		"frames.triggers":     def.Frames.Triggers,
		"frames.curvature":    def.Frames.Curvature,
		"frames.wheel":        def.Frames.Wheel,
		"engine.radius_limit": def.Engine.RadiusLimit,
		"engine.pt1_min":      def.Engine.PT1Min,
		"engine.pt1_max":      def.Engine.PT1Max,
		"axes.left_x":         def.Axes.LeftX,
		"axes.left_y":         def.Axes.LeftY,
		"axes.right_x":        def.Axes.RightX,
		"axes.right_y":        def.Axes.RightY,
		"axes.left_trigger":   def.Axes.LeftTrigger,
		"axes.right_trigger":  def.Axes.RightTrigger,
		"axes.wheel":          def.Axes.Wheel,
		"axes.throttle":       def.Axes.Throttle,
		"axes.brake":          def.Axes.Brake,
		"axes.clutch":         def.Axes.Clutch,
		"axes.invert_pedals":  def.Axes.InvertPedals,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func (c Config) Validate() error {
	var errs []error
	if !(c.RateHz > 0) {
		errs = append(errs, fmt.Errorf("rate_hz must be positive, got %g", c.RateHz))
	}
	if c.Duration < 0 {
		errs = append(errs, fmt.Errorf("duration must not be negative, got %s", c.Duration))
	}
	if c.Deadzone < 0 || c.Deadzone >= 1 {
		errs = append(errs, fmt.Errorf("deadzone must be in [0,1), got %g", c.Deadzone))
	}
	switch c.Transport {
	case "socketcan", "log":
	case "slcan":
		if c.Serial.Port == "" {
			errs = append(errs, errors.New("slcan transport needs serial.port"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	switch c.Source {
	case "sdl":
	case "replay":
		if c.Profile == "" && !c.Monitor {
			errs = append(errs, errors.New("replay source needs a profile"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source %q", c.Source))
	}
	if c.Monitor && c.Transport != "socketcan" {
		errs = append(errs, errors.New("monitor mode needs the socketcan transport"))
	}
	return errors.Join(errs...)
}

// Period is the tick interval for RateHz.
func (c Config) Period() time.Duration {
	return time.Duration(float64(time.Second) / c.RateHz)
}
