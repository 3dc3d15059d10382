// Command pad2can reads a game controller and broadcasts its sticks, triggers,
// buttons and a filtered curvature command as CAN frames at a fixed rate.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/pflag"

	"pad2can/bridge/cli"
	"pad2can/bridge/conditioning"
	"pad2can/bridge/pipeline"
	"pad2can/bridge/sdlpad"
	"pad2can/utils"
)

// SDL must be driven from the main thread.
func init() { runtime.LockOSThread() }

func main() {
	cfg, err := cli.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: " + err.Error() + "\n")
		os.Exit(2)
	}

	// Frames go to stdout in log mode; keep log lines out of that stream.
	log, err := utils.NewFileLogger(cfg.LogFile, utils.ParseLevel(cfg.Log), cfg.Transport != "log")
	if err != nil {
		_, _ = os.Stderr.WriteString("ERROR: cannot open " + cfg.LogFile + ": " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logConfig(log, cfg)

	if err := run(ctx, cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, pipeline.ErrNoDevice) {
			log.Critical("No input device detected: %v", err)
		} else {
			log.Critical("Run failed: %v", err)
		}
		log.Close()
		os.Exit(1)
	}
}

func logConfig(log *utils.Logger, cfg cli.Config) {
	log.Info("Parameter values used:")
	log.Info("  transport=%s iface=%s serial=%s@%d bitrate=%d", cfg.Transport, cfg.Iface, cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.Bitrate)
	log.Info("  map=%s frames=%s/%s/%s", cfg.Map, cfg.Frames.Sticks, cfg.Frames.Triggers, cfg.Frames.Curvature)
	if cfg.Frames.Wheel != "" {
		log.Info("  wheel frame=%s axes wheel=%d throttle=%d brake=%d clutch=%d invert_pedals=%t",
			cfg.Frames.Wheel, cfg.Axes.Wheel, cfg.Axes.Throttle, cfg.Axes.Brake, cfg.Axes.Clutch, cfg.Axes.InvertPedals)
	}
	log.Info("  source=%s profile=%s joystick=%d", cfg.Source, cfg.Profile, cfg.Joystick)
	log.Info("  rate=%.1fHz duration=%s deadzone=%.3f", cfg.RateHz, cfg.Duration, cfg.Deadzone)
	log.Info("  radius_limit=%g pt1_min=%.4f pt1_max=%.4f radius_table=%v",
		cfg.Engine.RadiusLimit, cfg.Engine.PT1Min, cfg.Engine.PT1Max, cfg.Engine.RadiusTable)
}

func run(ctx context.Context, cfg cli.Config, log *utils.Logger) error {
	cmap, err := utils.LoadCANMap(cfg.Map)
	if err != nil {
		return fmt.Errorf("load CAN map: %w", err)
	}
	enc, err := pipeline.NewEncoder(cmap, cfg.Frames)
	if err != nil {
		return err
	}

	if cfg.Monitor {
		reader, err := utils.NewSocketCANReader(ctx, cfg.Iface)
		if err != nil {
			return err
		}
		defer reader.Close()
		return pipeline.NewMonitor(log, reader, enc).Run(ctx)
	}

	engine, err := conditioning.NewCurvatureEngine(cfg.Engine)
	if err != nil {
		return fmt.Errorf("curvature engine: %w", err)
	}
	if err := enc.CheckEngine(engine); err != nil {
		return fmt.Errorf("curvature engine: %w", err)
	}
	pipe, err := pipeline.New(cfg.Deadzone, engine)
	if err != nil {
		return err
	}

	sampler, err := openSampler(cfg, log)
	if err != nil {
		return err
	}
	defer sampler.Close()

	writer, err := openWriter(ctx, cfg)
	if err != nil {
		return err
	}
	defer writer.Close()

	runner, err := pipeline.NewRunner(pipeline.RunnerConfig{Period: cfg.Period(), Duration: cfg.Duration},
		log, sampler, pipe, enc, writer)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

func openSampler(cfg cli.Config, log *utils.Logger) (pipeline.Sampler, error) {
	switch cfg.Source {
	case "replay":
		p, err := pipeline.LoadProfile(cfg.Profile)
		if err != nil {
			return nil, fmt.Errorf("load profile %s: %w", cfg.Profile, err)
		}
		log.Info("Replaying profile %q: %.1fs loop=%t segments=%d", p.Name, p.DurationS, p.Loop, len(p.Segments))
		return pipeline.NewReplaySampler(p), nil
	case "sdl":
		return sdlpad.Open(cfg.Joystick, cfg.Axes, log)
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

func openWriter(ctx context.Context, cfg cli.Config) (utils.CANWriter, error) {
	switch cfg.Transport {
	case "socketcan":
		return utils.NewSocketCANWriter(ctx, cfg.Iface)
	case "slcan":
		return utils.NewSLCANWriter(cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.Bitrate)
	case "log":
		return utils.NewLogWriter(os.Stdout), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}
