// Package encode feeds filtered frames into a block-based video encoder and
// moves its output into the muxer.
package encode

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/logging"
	"github.com/five82/clarify/internal/media"
	"github.com/five82/clarify/internal/pixel"
)

// PipelineConfig holds the bounded waits used against the encoder.
type PipelineConfig struct {
	InputTimeout  time.Duration // wait for a free input slot before dropping a frame
	OutputTimeout time.Duration // wait per output poll
	EOSTimeout    time.Duration // longest stretch without output while finishing
}

// Stats counts what happened to frames and samples.
type Stats struct {
	FramesSubmitted int
	FramesDropped   int
	SamplesWritten  int
	WriteFailures   int
	ConfigDiscarded int
}

// Pipeline converts frames to I420, queues them on the encoder and drains
// encoded samples through a MuxGate.
type Pipeline struct {
	enc  media.Encoder
	gate *MuxGate
	cfg  PipelineConfig

	videoTrack int
	formatSeen bool
	eos        bool
	released   bool
	lastQueued int64
	yuv        []byte
	stats      Stats
}

// NewPipeline wraps a configured encoder.
func NewPipeline(enc media.Encoder, gate *MuxGate, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		enc:        enc,
		gate:       gate,
		cfg:        cfg,
		videoTrack: -1,
	}
}

// SubmitFrame queues one frame. When no input slot frees up within
// InputTimeout the frame is dropped; that is not an error.
func (p *Pipeline) SubmitFrame(ctx context.Context, frame pixel.Buffer, timestampUs int64) error {
	if err := ctx.Err(); err != nil {
		return cerrors.NewCancelledError()
	}
	if p.eos || p.released {
		return cerrors.NewOperationFailedError("submit after end of stream", nil)
	}

	p.yuv = pixel.AppendI420(p.yuv[:0], frame)

	slot, ok := p.enc.DequeueInput(p.cfg.InputTimeout)
	if !ok {
		p.stats.FramesDropped++
		logging.WithFields(logrus.Fields{
			"function":     "Pipeline.SubmitFrame",
			"timestamp_us": timestampUs,
			"dropped":      p.stats.FramesDropped,
		}).Debug("no encoder input slot, dropping frame")
	} else {
		if err := p.enc.QueueInput(slot, p.yuv, timestampUs, 0); err != nil {
			return cerrors.NewResourceInitError("queue encoder input", err)
		}
		p.stats.FramesSubmitted++
		p.lastQueued = timestampUs
	}

	return p.Drain()
}

// Drain moves everything the encoder has ready into the gate and returns on
// the first empty poll or end of stream.
func (p *Pipeline) Drain() error {
	_, err := p.drain()
	return err
}

func (p *Pipeline) drain() (int, error) {
	received := 0
	for !p.eos {
		out, err := p.enc.DequeueOutput(p.cfg.OutputTimeout)
		if err != nil {
			return received, cerrors.NewOperationFailedError("encoder output", err)
		}

		switch out.Kind {
		case media.OutputTryAgain:
			return received, nil
		case media.OutputFormatChanged:
			received++
			if err := p.onFormat(out.Format); err != nil {
				return received, err
			}
		case media.OutputSample:
			received++
			p.onSample(out.Sample)
		}
	}
	return received, nil
}

func (p *Pipeline) onFormat(format media.TrackFormat) error {
	if p.formatSeen {
		logging.WithFields(logrus.Fields{"function": "Pipeline.onFormat"}).Warn("encoder reported a second output format, ignoring")
		return nil
	}
	p.formatSeen = true
	format.Kind = media.TrackVideo

	track, err := p.gate.Register(format)
	if err != nil {
		return err
	}
	p.videoTrack = track
	return nil
}

func (p *Pipeline) onSample(s media.Sample) {
	if s.Flags.Has(media.FlagEndOfStream) {
		p.eos = true
	}

	log := logging.WithFields(logrus.Fields{
		"function":     "Pipeline.onSample",
		"timestamp_us": s.TimestampUs,
		"flags":        s.Flags.String(),
	})

	switch {
	case s.Flags.Has(media.FlagCodecConfig):
		// carried in the track format instead
		p.stats.ConfigDiscarded++
		return
	case len(s.Data) == 0:
		return
	case p.videoTrack < 0:
		p.stats.WriteFailures++
		log.Warn("encoded sample before output format, skipping")
		return
	}

	flags := s.Flags &^ media.FlagEndOfStream
	if err := p.gate.WriteSample(p.videoTrack, s.Data, media.SampleInfo{TimestampUs: s.TimestampUs, Flags: flags}); err != nil {
		p.stats.WriteFailures++
		log.Warnf("sample write failed, skipping: %v", err)
		return
	}
	p.stats.SamplesWritten++
}

// Finish signals end of stream, drains until the encoder confirms it and
// releases the encoder. The encoder is released even on error.
func (p *Pipeline) Finish(ctx context.Context) error {
	if p.released {
		return nil
	}
	defer p.Close()

	if !p.eos {
		if err := p.queueEOS(ctx); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(p.cfg.EOSTimeout)
	for !p.eos {
		if err := ctx.Err(); err != nil {
			return cerrors.NewCancelledError()
		}
		n, err := p.drain()
		if err != nil {
			return err
		}
		if n > 0 {
			deadline = time.Now().Add(p.cfg.EOSTimeout)
		} else if time.Now().After(deadline) {
			return cerrors.NewOperationFailedError(fmt.Sprintf("encoder produced no output for %s while finishing", p.cfg.EOSTimeout), nil)
		}
	}

	logging.WithFields(logrus.Fields{
		"function":  "Pipeline.Finish",
		"submitted": p.stats.FramesSubmitted,
		"dropped":   p.stats.FramesDropped,
		"written":   p.stats.SamplesWritten,
		"failures":  p.stats.WriteFailures,
	}).Info("encoder drained")
	return nil
}

// queueEOS waits for a slot to carry the end-of-stream marker, draining
// between attempts so a full encoder can make room.
func (p *Pipeline) queueEOS(ctx context.Context) error {
	deadline := time.Now().Add(p.cfg.EOSTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return cerrors.NewCancelledError()
		}
		if slot, ok := p.enc.DequeueInput(p.cfg.InputTimeout); ok {
			if err := p.enc.QueueInput(slot, nil, p.lastQueued, media.FlagEndOfStream); err != nil {
				return cerrors.NewResourceInitError("queue end of stream", err)
			}
			return nil
		}
		n, err := p.drain()
		if err != nil {
			return err
		}
		if p.eos {
			return nil
		}
		if n > 0 {
			deadline = time.Now().Add(p.cfg.EOSTimeout)
		} else if time.Now().After(deadline) {
			return cerrors.NewOperationFailedError("no encoder input slot for end of stream", nil)
		}
	}
}

// Close releases the encoder without draining. Safe to call more than once.
func (p *Pipeline) Close() error {
	if p.released {
		return nil
	}
	p.released = true
	return p.enc.Release()
}

// Stats returns the counters so far. Held samples count as written when the
// gate accepts them, so any the muxer later refused are moved to failures.
func (p *Pipeline) Stats() Stats {
	s := p.stats
	if p.videoTrack >= 0 {
		n := p.gate.Rejected(p.videoTrack)
		s.SamplesWritten -= n
		s.WriteFailures += n
	}
	return s
}

// EndOfStream reports whether the encoder has signalled end of stream.
func (p *Pipeline) EndOfStream() bool {
	return p.eos
}
