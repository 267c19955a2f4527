// Package model selects how a frame is enhanced: by an external learned model
// when one is installed, or by the classic pixel filter chain.
package model

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/sirupsen/logrus"

	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/logging"
	"github.com/five82/clarify/internal/pixel"
)

// Runner is an optional learned enhancement model.
type Runner interface {
	Available() bool
	Run(ctx context.Context, frame pixel.Buffer) (pixel.Buffer, error)
}

// Strategy names.
const (
	StrategyLearned = "learned"
	StrategyClassic = "classic"
)

// Strategy enhances one frame.
type Strategy interface {
	Name() string
	Enhance(ctx context.Context, frame pixel.Buffer, params pixel.Params) (pixel.Buffer, error)
}

// Select returns the learned strategy when runner is available, otherwise the
// classic filter chain. It is called per photo or per transcode so a model
// installed mid-session is picked up.
func Select(runner Runner, opts ...pixel.Option) Strategy {
	classic := Classic{Options: opts}
	if runner != nil && runner.Available() {
		return Learned{Runner: runner, Fallback: classic}
	}
	return classic
}

// Classic runs blur, unsharp and remap.
type Classic struct {
	Options []pixel.Option
}

func (Classic) Name() string { return StrategyClassic }

func (c Classic) Enhance(_ context.Context, frame pixel.Buffer, params pixel.Params) (pixel.Buffer, error) {
	return pixel.Enhance(frame, params, c.Options...), nil
}

// Learned hands the frame to the model. A model failure on one frame falls
// back to the classic chain for that frame.
type Learned struct {
	Runner   Runner
	Fallback Classic
}

func (Learned) Name() string { return StrategyLearned }

func (l Learned) Enhance(ctx context.Context, frame pixel.Buffer, params pixel.Params) (pixel.Buffer, error) {
	out, err := l.Runner.Run(ctx, frame)
	if err == nil {
		err = checkOutput(frame, out)
	}
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return pixel.Buffer{}, cerrors.NewCancelledError()
	}

	logging.WithFields(logrus.Fields{
		"function": "Learned.Enhance",
	}).Warnf("model failed, using classic filters: %v", err)
	return l.Fallback.Enhance(ctx, frame, params)
}

func checkOutput(in, out pixel.Buffer) error {
	if err := out.Validate(); err != nil {
		return err
	}
	if out.Width != in.Width || out.Height != in.Height {
		return fmt.Errorf("model returned %dx%d for a %dx%d frame", out.Width, out.Height, in.Width, in.Height)
	}
	return nil
}

// CommandRunner runs an external model executable. The frame is written to
// its stdin as packed RGBA and the enhanced frame, same size, is read from
// stdout. Width and height are passed as arguments.
type CommandRunner struct {
	Path string
}

// Available reports whether the executable exists.
func (r CommandRunner) Available() bool {
	if r.Path == "" {
		return false
	}
	if _, err := exec.LookPath(r.Path); err != nil {
		return false
	}
	info, err := os.Stat(r.Path)
	if err == nil && info.IsDir() {
		return false
	}
	return true
}

func (r CommandRunner) Run(ctx context.Context, frame pixel.Buffer) (pixel.Buffer, error) {
	rgba := toRGBA(frame)

	cmd := exec.CommandContext(ctx, r.Path, strconv.Itoa(frame.Width), strconv.Itoa(frame.Height))
	cmd.Stdin = bytes.NewReader(rgba.Pix)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return pixel.Buffer{}, cerrors.WrapExecError(r.Path, err, stderr.String())
	}
	out, err := pixel.FromRGBA(frame.Width, frame.Height, stdout.Bytes())
	if err != nil {
		return pixel.Buffer{}, fmt.Errorf("model output: %w", err)
	}
	return out, nil
}

// toRGBA widens a 3-channel buffer to 4 channels, since the model protocol is
// always RGBA.
func toRGBA(b pixel.Buffer) pixel.Buffer {
	if b.Channels == 4 {
		return b
	}
	out := pixel.NewBuffer(b.Width, b.Height, 4)
	for i, j := 0, 0; i+2 < len(b.Pix); i, j = i+b.Channels, j+4 {
		out.Pix[j] = b.Pix[i]
		out.Pix[j+1] = b.Pix[i+1]
		out.Pix[j+2] = b.Pix[i+2]
		out.Pix[j+3] = 255
	}
	return out
}
