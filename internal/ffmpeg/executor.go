package ffmpeg

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/logging"
	"github.com/five82/clarify/internal/util"
)

// Binary is the ffmpeg executable looked up on PATH.
var Binary = "ffmpeg"

// stderrTailSize bounds how much stderr is kept for error messages.
const stderrTailSize = 4 << 10

// Available reports whether ffmpeg can be found.
func Available() bool {
	_, err := exec.LookPath(Binary)
	return err == nil
}

// RunOptions controls a one-shot ffmpeg invocation.
type RunOptions struct {
	Stdin       io.Reader
	LowPriority bool
}

// Run executes ffmpeg to completion and returns its stdout.
func Run(ctx context.Context, args []string, opts RunOptions) ([]byte, error) {
	cmd := exec.CommandContext(ctx, Binary, args...)
	var stdout bytes.Buffer
	stderr := &tailBuffer{limit: stderrTailSize}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr
	cmd.Stdin = opts.Stdin

	logging.WithFields(logrus.Fields{
		"function": "ffmpeg.Run",
		"args":     strings.Join(args, " "),
	}).Debug("running ffmpeg")

	if err := cmd.Start(); err != nil {
		return nil, cerrors.NewCommandStartError(Binary, err)
	}
	if opts.LowPriority {
		lowerPriority(cmd)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, cerrors.NewCancelledError()
		}
		return nil, cerrors.WrapExecError(Binary, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func lowerPriority(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	if err := util.LowerPriority(cmd.Process.Pid); err != nil {
		logging.WithFields(logrus.Fields{
			"function": "ffmpeg.lowerPriority",
			"pid":      cmd.Process.Pid,
		}).Debugf("could not lower priority: %v", err)
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
