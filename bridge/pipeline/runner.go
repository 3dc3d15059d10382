package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pad2can/utils"
)

// ErrSendFailed marks a frame the transport did not accept. It is not fatal:
// the next tick's frame for the same role supersedes it.
var ErrSendFailed = errors.New("send failed")

// SendResult is the outcome of one frame transmission.
type SendResult struct {
	Role Role
	Err  error // wraps ErrSendFailed and the transport error
}

func (r SendResult) OK() bool { return r.Err == nil }

type RunnerConfig struct {
	Period   time.Duration
	Duration time.Duration // 0 runs until the context ends
}

// Stats counts ticks and per-role send outcomes.
type Stats struct {
	Ticks  uint64
	Sent   [numRoles]uint64
	Failed [numRoles]uint64
}

type Runner struct {
	cfg     RunnerConfig
	log     *utils.Logger
	sampler Sampler
	pipe    *Pipeline
	enc     *Encoder
	writer  utils.CANWriter
	stats   Stats
}

func NewRunner(cfg RunnerConfig, log *utils.Logger, sampler Sampler, pipe *Pipeline, enc *Encoder, writer utils.CANWriter) (*Runner, error) {
	if cfg.Period <= 0 {
		return nil, fmt.Errorf("invalid tick period %s", cfg.Period)
	}
	if cfg.Duration < 0 {
		return nil, fmt.Errorf("invalid duration %s", cfg.Duration)
	}
	if sampler == nil || pipe == nil || enc == nil || writer == nil {
		return nil, errors.New("runner needs a sampler, pipeline, encoder and writer")
	}
	return &Runner{
		cfg:     cfg,
		log:     log,
		sampler: sampler,
		pipe:    pipe,
		enc:     enc,
		writer:  writer,
	}, nil
}

func (r *Runner) Stats() Stats { return r.stats }

// Run ticks at the configured period until ctx ends, the duration elapses or
// the sampler reports ErrSourceDone. It must run on the goroutine that owns
// the sampler.
func (r *Runner) Run(ctx context.Context) error {
	for _, role := range r.enc.Roles() {
		fd := r.enc.Frame(role)
		r.log.Info("TX %s: frame=%s id=0x%X dlc=%d", role, fd.Name, fd.ID, fd.DLC)
		if fd.CycleMS > 0 && time.Duration(fd.CycleMS)*time.Millisecond != r.cfg.Period {
			r.log.Warn("frame %s declares cycle_ms=%d but ticking every %s", fd.Name, fd.CycleMS, r.cfg.Period)
		}
	}
	r.log.Info("Starting TX: period=%s duration=%s", r.cfg.Period, r.cfg.Duration)

	start := time.Now()
	ticker := time.NewTicker(r.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Warn("Context canceled; stopping TX")
			r.logSummary()
			return ctx.Err()

		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if r.cfg.Duration > 0 && elapsed > r.cfg.Duration {
				r.logSummary()
				return nil
			}

			_, err := r.Tick(ctx)
			if errors.Is(err, ErrSourceDone) {
				r.log.Info("Input source finished at t=%.3f", elapsed.Seconds())
				r.logSummary()
				return nil
			}
			if err != nil {
				r.log.Error("Tick failed at t=%.3f: %v", elapsed.Seconds(), err)
				return err
			}
		}
	}
}

// Tick samples, conditions, encodes and sends one frame per enabled role. Send
// failures are logged and returned as results; only sampling exhaustion and
// encoding errors are returned as err.
func (r *Runner) Tick(ctx context.Context) ([]SendResult, error) {
	s, err := r.sampler.Sample()
	if errors.Is(err, ErrSourceDone) {
		return nil, err
	}
	if err != nil {
		r.log.Warn("Sample failed, sending neutral input: %v", err)
		s = NeutralSample()
	}

	c := r.pipe.Step(s)
	r.stats.Ticks++
	if r.log.Enabled(utils.DEBUG) {
		r.log.Debug("steering=%.2f damping=%.2f radius=%.0f alpha=%.4f curvature=%.5f",
			c.Curve.Steering, c.Curve.Damping, c.Curve.Radius, c.Curve.Alpha, c.Curve.Curvature)
	}

	frames, err := r.enc.Encode(c)
	if err != nil {
		return nil, err
	}

	results := make([]SendResult, 0, len(frames))
	for _, rf := range frames {
		res := SendResult{Role: rf.Role}
		if err := r.writer.WriteFrame(ctx, rf.Frame); err != nil {
			res.Err = fmt.Errorf("%w: %s frame 0x%X: %w", ErrSendFailed, rf.Role, rf.Frame.ID, err)
			r.stats.Failed[rf.Role]++
			r.log.Error("%v", res.Err)
		} else {
			r.stats.Sent[rf.Role]++
			r.log.Trace("TX %s id=0x%X len=%d data=% X", rf.Role, rf.Frame.ID, rf.Frame.Length, rf.Frame.Data[:rf.Frame.Length])
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) logSummary() {
	r.log.Info("Completed TX. ticks=%d sent=%v failed=%v", r.stats.Ticks, r.stats.Sent, r.stats.Failed)
}
