package cli

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pad2can/bridge/conditioning"
	"pad2can/bridge/pipeline"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "vcan0", cfg.Iface)
	assert.Equal(t, "socketcan", cfg.Transport)
	assert.Equal(t, "sdl", cfg.Source)
	assert.Equal(t, 50.0, cfg.RateHz)
	assert.Equal(t, 20*time.Millisecond, cfg.Period())
	assert.Equal(t, 0.05, cfg.Deadzone)
	assert.Equal(t, "PAD_CURVATURE", cfg.Frames.Curvature)
	assert.Equal(t, conditioning.DefaultRadiusLimit, cfg.Engine.RadiusLimit)
	assert.Empty(t, cfg.Engine.RadiusTable)
	assert.Equal(t, int32(5), cfg.Axes.RightTrigger)
	assert.Equal(t, pipeline.Unmapped, cfg.Axes.Wheel)
	assert.Empty(t, cfg.Frames.Wheel)
	assert.Equal(t, [pipeline.NumButtons]int32{0, 1, 2, 3}, cfg.Axes.Buttons)
}

func TestLoadConfig_Flags(t *testing.T) {
	cfg, err := Load([]string{
		"--transport=log", "-s", "replay", "-p", "bench.yaml",
		"--rate_hz=100", "--duration=2s", "--deadzone=0.1",
	})
	require.NoError(t, err)

	assert.Equal(t, "log", cfg.Transport)
	assert.Equal(t, "replay", cfg.Source)
	assert.Equal(t, "bench.yaml", cfg.Profile)
	assert.Equal(t, 10*time.Millisecond, cfg.Period())
	assert.Equal(t, 2*time.Second, cfg.Duration)
	assert.Equal(t, 0.1, cfg.Deadzone)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pad2can.yaml")
	doc := `
transport: slcan
serial:
  port: /dev/ttyACM0
  bitrate: 250000
rate_hz: 100
frames:
  curvature: STEER_CURVE
engine:
  radius_limit: 5000
  radius_table:
    - {x: 0, y: 100}
    - {x: 1, y: 20}
axes:
  right_x: 3
  right_y: 4
  buttons: [1, 0, 3, 2]
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load([]string{"--config", path, "--rate_hz=25"})
	require.NoError(t, err)

	assert.Equal(t, "slcan", cfg.Transport)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 250000, cfg.Serial.Bitrate)
	assert.Equal(t, 115200, cfg.Serial.Baud)
	assert.Equal(t, 25.0, cfg.RateHz, "flags override the file")
	assert.Equal(t, "STEER_CURVE", cfg.Frames.Curvature)
	assert.Equal(t, "PAD_STICKS", cfg.Frames.Sticks)
	assert.Equal(t, 5000.0, cfg.Engine.RadiusLimit)
	assert.Equal(t, []conditioning.Point{{X: 0, Y: 100}, {X: 1, Y: 20}}, cfg.Engine.RadiusTable)
	assert.Equal(t, conditioning.DefaultPT1Min, cfg.Engine.PT1Min)
	assert.Equal(t, int32(4), cfg.Axes.RightY)
	assert.Equal(t, [4]int32{1, 0, 3, 2}, cfg.Axes.Buttons)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("PAD2CAN_IFACE", "can1")
	t.Setenv("PAD2CAN_SERIAL_BAUD", "921600")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "can1", cfg.Iface)
	assert.Equal(t, 921600, cfg.Serial.Baud)
}

func TestLoadConfig_EnvNestedKeys(t *testing.T) {
	t.Setenv("PAD2CAN_ENGINE_PT1_MIN", "0.25")
	t.Setenv("PAD2CAN_AXES_LEFT_X", "3")
	t.Setenv("PAD2CAN_AXES_INVERT_PEDALS", "true")
	t.Setenv("PAD2CAN_FRAMES_WHEEL", "WHEEL_PEDALS")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Engine.PT1Min)
	assert.Equal(t, conditioning.DefaultPT1Max, cfg.Engine.PT1Max)
	assert.Equal(t, int32(3), cfg.Axes.LeftX)
	assert.Equal(t, int32(1), cfg.Axes.LeftY)
	assert.True(t, cfg.Axes.InvertPedals)
	assert.Equal(t, "WHEEL_PEDALS", cfg.Frames.Wheel)
	assert.Equal(t, "PAD_STICKS", cfg.Frames.Sticks)
	assert.Equal(t, [pipeline.NumButtons]int32{0, 1, 2, 3}, cfg.Axes.Buttons)
}

func TestLoadConfig_EnvOverridesFileNestedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pad2can.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  pt1_max: 0.9\n"), 0o644))
	t.Setenv("PAD2CAN_ENGINE_PT1_MAX", "0.7")

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Engine.PT1Max)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := map[string][]string{
		"zero rate":          {"--rate_hz=0"},
		"negative deadzone":  {"--deadzone=-0.1"},
		"unknown transport":  {"--transport=usb"},
		"slcan without port": {"--transport=slcan"},
		"unknown source":     {"--source=keyboard"},
		"replay no profile":  {"--source=replay"},
		"monitor over log":   {"--monitor", "--transport=log"},
		"negative duration":  {"--duration=-1s"},
		"missing file":       {"--config=/nonexistent/pad2can.yaml"},
		"unknown flag":       {"--frobnicate"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(args)
			assert.Error(t, err)
		})
	}
}
