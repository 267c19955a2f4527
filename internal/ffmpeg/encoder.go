package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/five82/clarify/internal/av1"
	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/ivf"
	"github.com/five82/clarify/internal/logging"
	"github.com/five82/clarify/internal/media"
)

// outputQueueSize bounds encoded output waiting to be polled.
const outputQueueSize = 64

// SVTAV1Encoder runs ffmpeg's libsvtav1 as a block-based encoder: raw I420
// frames go in through a fixed pool of input slots, IVF temporal units come
// out as samples.
type SVTAV1Encoder struct {
	// LowPriority renices the encoder process after start.
	LowPriority bool
	// LogicalProcessors caps SVT-AV1's thread pool; zero lets it decide.
	LogicalProcessors int

	cfg   media.VideoConfig
	cmd   *exec.Cmd
	stdin io.WriteCloser

	slots   chan int
	bufs    [][]byte
	jobs    chan encodeJob
	outputs chan media.Output
	done    chan struct{}
	failed  chan struct{}

	tsMu    sync.Mutex
	pending []int64

	errMu sync.Mutex
	err   error

	stderr     *tailBuffer
	wg         sync.WaitGroup
	exited     atomic.Bool
	stdinOnce  sync.Once
	failOnce   sync.Once
	cancel     context.CancelFunc
	configured bool
	released   bool
}

type encodeJob struct {
	slot int
	size int
	eos  bool
}

// NewSVTAV1Encoder creates an encoder with the given number of input slots.
func NewSVTAV1Encoder(slots int) *SVTAV1Encoder {
	if slots < 1 {
		slots = 1
	}
	e := &SVTAV1Encoder{
		slots:   make(chan int, slots),
		bufs:    make([][]byte, slots),
		jobs:    make(chan encodeJob, slots+1),
		outputs: make(chan media.Output, outputQueueSize),
		done:    make(chan struct{}),
		failed:  make(chan struct{}),
		stderr:  &tailBuffer{limit: stderrTailSize},
	}
	for i := 0; i < slots; i++ {
		e.slots <- i
	}
	return e
}

// Configure starts the encoder process.
func (e *SVTAV1Encoder) Configure(cfg media.VideoConfig) error {
	if e.configured {
		return cerrors.NewResourceInitError("encoder already configured", nil)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width%2 != 0 || cfg.Height%2 != 0 {
		return cerrors.NewResourceInitError(fmt.Sprintf("unsupported encoder size %dx%d", cfg.Width, cfg.Height), nil)
	}
	if cfg.FrameRate <= 0 {
		return cerrors.NewResourceInitError(fmt.Sprintf("unsupported frame rate %d", cfg.FrameRate), nil)
	}
	e.cfg = cfg

	ctx, cancel := context.WithCancel(context.Background())
	args := EncoderArgs(cfg, e.LogicalProcessors)
	cmd := exec.CommandContext(ctx, Binary, args...)
	cmd.Stderr = e.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return cerrors.NewResourceInitError("encoder stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return cerrors.NewResourceInitError("encoder stdout", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return cerrors.NewResourceInitError("start SVT-AV1 encoder", cerrors.NewCommandStartError(Binary, err))
	}
	if e.LowPriority {
		lowerPriority(cmd)
	}

	e.cmd = cmd
	e.stdin = stdin
	e.cancel = cancel
	e.configured = true

	logging.WithFields(logrus.Fields{
		"function": "SVTAV1Encoder.Configure",
		"width":    cfg.Width,
		"height":   cfg.Height,
		"crf":      cfg.CRF,
		"preset":   cfg.Preset,
		"fps":      cfg.FrameRate,
	}).Debug("encoder started")

	e.wg.Add(2)
	go e.writeLoop()
	go e.readLoop(stdout)
	return nil
}

// DequeueInput waits up to timeout for a free slot.
func (e *SVTAV1Encoder) DequeueInput(timeout time.Duration) (int, bool) {
	if !e.configured || e.released {
		return -1, false
	}
	select {
	case s := <-e.slots:
		return s, true
	default:
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case s := <-e.slots:
		return s, true
	case <-e.failed:
		return -1, false
	case <-timer.C:
		return -1, false
	}
}

// QueueInput hands a frame, or the end-of-stream marker, to the writer.
func (e *SVTAV1Encoder) QueueInput(slot int, data []byte, timestampUs int64, flags media.BufferFlags) error {
	if !e.configured || e.released {
		return cerrors.NewResourceInitError("encoder not running", nil)
	}
	if slot < 0 || slot >= len(e.bufs) {
		return fmt.Errorf("invalid input slot %d", slot)
	}
	if err := e.failure(); err != nil {
		e.slots <- slot
		return err
	}

	if flags.Has(media.FlagEndOfStream) {
		e.jobs <- encodeJob{slot: slot, eos: true}
		return nil
	}

	e.bufs[slot] = append(e.bufs[slot][:0], data...)
	e.tsMu.Lock()
	e.pending = append(e.pending, timestampUs)
	e.tsMu.Unlock()
	e.jobs <- encodeJob{slot: slot, size: len(data)}
	return nil
}

// DequeueOutput returns the next encoder event, TryAgain after timeout, or
// the error that stopped the encoder once its remaining output is consumed.
func (e *SVTAV1Encoder) DequeueOutput(timeout time.Duration) (media.Output, error) {
	select {
	case o := <-e.outputs:
		return o, nil
	default:
	}
	if err := e.failure(); err != nil {
		return media.Output{}, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case o := <-e.outputs:
		return o, nil
	case <-e.failed:
		select {
		case o := <-e.outputs:
			return o, nil
		default:
		}
		return media.Output{}, e.failure()
	case <-timer.C:
		return media.Output{Kind: media.OutputTryAgain}, nil
	}
}

// Release stops the process and waits for the I/O goroutines.
func (e *SVTAV1Encoder) Release() error {
	if e.released {
		return nil
	}
	e.released = true
	if !e.configured {
		return nil
	}
	close(e.done)
	e.closeStdin()
	if !e.exited.Load() {
		e.cancel()
	}
	e.wg.Wait()
	e.cancel()
	return nil
}

func (e *SVTAV1Encoder) writeLoop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case j := <-e.jobs:
			if j.eos {
				e.closeStdin()
				e.slots <- j.slot
				return
			}
			if e.failure() == nil {
				if _, err := e.stdin.Write(e.bufs[j.slot][:j.size]); err != nil {
					e.fail(fmt.Errorf("write frame to encoder: %w", err))
				}
			}
			e.slots <- j.slot
		}
	}
}

func (e *SVTAV1Encoder) readLoop(stdout io.Reader) {
	defer e.wg.Done()

	r, err := ivf.NewReader(stdout)
	if err != nil {
		e.finish(fmt.Errorf("read encoder output: %w", err), 0)
		return
	}

	var lastTs int64
	first := true
	for {
		frame, err := r.Next()
		if errors.Is(err, io.EOF) {
			e.finish(nil, lastTs)
			return
		}
		if err != nil {
			e.finish(fmt.Errorf("read encoder output: %w", err), lastTs)
			return
		}

		if first {
			first = false
			seq, _ := av1.SequenceHeader(frame.Data)
			format := media.TrackFormat{
				Kind:         media.TrackVideo,
				Codec:        media.CodecAV1,
				Width:        e.cfg.Width,
				Height:       e.cfg.Height,
				FrameRate:    e.cfg.FrameRate,
				CodecPrivate: seq,
			}
			if !e.emit(media.Output{Kind: media.OutputFormatChanged, Format: format}) {
				return
			}
			if len(seq) > 0 {
				cfgSample := media.Sample{Data: seq, Flags: media.FlagCodecConfig}
				if !e.emit(media.Output{Kind: media.OutputSample, Sample: cfgSample}) {
					return
				}
			}
		}

		ts := e.popTimestamp(frame.PTS)
		lastTs = ts
		var flags media.BufferFlags
		if av1.IsKeyFrame(frame.Data) {
			flags |= media.FlagKeyFrame
		}
		sample := media.Sample{Data: frame.Data, TimestampUs: ts, Flags: flags}
		if !e.emit(media.Output{Kind: media.OutputSample, Sample: sample}) {
			return
		}
	}
}

// finish reaps the process and reports end of stream or failure.
func (e *SVTAV1Encoder) finish(readErr error, lastTs int64) {
	if readErr != nil {
		e.cancel()
	}
	waitErr := e.cmd.Wait()
	e.exited.Store(true)

	select {
	case <-e.done:
		return
	default:
	}

	switch {
	case readErr != nil:
		e.fail(readErr)
	case waitErr != nil:
		e.fail(cerrors.WrapExecError(Binary, waitErr, e.stderr.String()))
	default:
		e.emit(media.Output{Kind: media.OutputSample, Sample: media.Sample{TimestampUs: lastTs, Flags: media.FlagEndOfStream}})
	}
}

// popTimestamp maps temporal units back to the queued timestamps. AV1 emits
// temporal units in presentation order, one per shown frame.
func (e *SVTAV1Encoder) popTimestamp(pts int64) int64 {
	e.tsMu.Lock()
	defer e.tsMu.Unlock()
	if len(e.pending) == 0 {
		return pts * 1_000_000 / int64(e.cfg.FrameRate)
	}
	ts := e.pending[0]
	e.pending = e.pending[1:]
	return ts
}

func (e *SVTAV1Encoder) emit(o media.Output) bool {
	select {
	case e.outputs <- o:
		return true
	case <-e.done:
		return false
	}
}

func (e *SVTAV1Encoder) fail(err error) {
	e.failOnce.Do(func() {
		e.errMu.Lock()
		e.err = err
		e.errMu.Unlock()
		close(e.failed)
		logging.WithFields(logrus.Fields{
			"function": "SVTAV1Encoder.fail",
		}).Errorf("encoder failed: %v", err)
	})
}

func (e *SVTAV1Encoder) failure() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

func (e *SVTAV1Encoder) closeStdin() {
	e.stdinOnce.Do(func() {
		if e.stdin != nil {
			_ = e.stdin.Close()
		}
	})
}
