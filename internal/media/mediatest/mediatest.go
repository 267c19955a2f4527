// Package mediatest provides in-memory media collaborators for tests.
package mediatest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/five82/clarify/internal/media"
	"github.com/five82/clarify/internal/pixel"
)

// Encoder is a synchronous fake: every queued frame immediately becomes one
// encoded sample. The first output is a format change followed by a codec
// config sample.
type Encoder struct {
	mu sync.Mutex

	// Slots is the number of inputs that can be queued before DequeueInput
	// starts failing. Zero means unlimited.
	Slots int
	// StallAfter makes DequeueInput fail once this many frames are queued.
	StallAfter int
	// FailOutput makes DequeueOutput return an error.
	FailOutput error

	Configured *media.VideoConfig
	Queued     []int64
	Released   bool

	inFlight  int
	outputs   []media.Output
	formatted bool
}

func (e *Encoder) Configure(cfg media.VideoConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Configured = &cfg
	return nil
}

func (e *Encoder) DequeueInput(time.Duration) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.StallAfter > 0 && len(e.Queued) >= e.StallAfter {
		return -1, false
	}
	if e.Slots > 0 && e.inFlight >= e.Slots {
		return -1, false
	}
	e.inFlight++
	return len(e.Queued), true
}

func (e *Encoder) QueueInput(slot int, data []byte, ts int64, flags media.BufferFlags) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Released {
		return errors.New("encoder released")
	}

	if !e.formatted && !flags.Has(media.FlagEndOfStream) {
		e.formatted = true
		format := media.TrackFormat{Codec: media.CodecAV1, CodecPrivate: []byte{0x0a, 0x0b}}
		if e.Configured != nil {
			format.Width, format.Height = e.Configured.Width, e.Configured.Height
			format.FrameRate = e.Configured.FrameRate
		}
		e.outputs = append(e.outputs,
			media.Output{Kind: media.OutputFormatChanged, Format: format},
			media.Output{Kind: media.OutputSample, Sample: media.Sample{Data: []byte{0x0a, 0x0b}, Flags: media.FlagCodecConfig}},
		)
	}

	if flags.Has(media.FlagEndOfStream) {
		e.outputs = append(e.outputs, media.Output{Kind: media.OutputSample, Sample: media.Sample{TimestampUs: ts, Flags: media.FlagEndOfStream}})
		return nil
	}

	e.Queued = append(e.Queued, ts)
	var sampleFlags media.BufferFlags
	if len(e.Queued) == 1 {
		sampleFlags = media.FlagKeyFrame
	}
	e.outputs = append(e.outputs, media.Output{Kind: media.OutputSample, Sample: media.Sample{
		Data:        []byte(fmt.Sprintf("frame-%d", ts)),
		TimestampUs: ts,
		Flags:       sampleFlags,
	}})
	return nil
}

func (e *Encoder) DequeueOutput(time.Duration) (media.Output, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailOutput != nil {
		return media.Output{}, e.FailOutput
	}
	if len(e.outputs) == 0 {
		return media.Output{Kind: media.OutputTryAgain}, nil
	}
	out := e.outputs[0]
	e.outputs = e.outputs[1:]
	if out.Kind == media.OutputSample && e.inFlight > 0 && !out.Sample.Flags.Has(media.FlagCodecConfig) {
		e.inFlight--
	}
	return out, nil
}

func (e *Encoder) Release() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Released = true
	return nil
}

// Muxer records every call and enforces the registration/start ordering.
type Muxer struct {
	mu sync.Mutex

	// FailWrite rejects writes at these timestamps.
	FailWrite map[int64]bool
	// FailStart makes Start return an error.
	FailStart error

	Tracks     []media.TrackFormat
	Samples    []media.Sample
	Events     []string
	Violations []string
	Started    bool
	Stopped    bool
	Released   bool

	lastTs map[int]int64
}

func (m *Muxer) violate(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	m.Violations = append(m.Violations, msg)
	return errors.New(msg)
}

func (m *Muxer) AddTrack(f media.TrackFormat) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Started {
		return -1, m.violate("add %s track after start", f.Kind)
	}
	m.Tracks = append(m.Tracks, f)
	m.Events = append(m.Events, "add:"+f.Kind.String())
	return len(m.Tracks) - 1, nil
}

func (m *Muxer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailStart != nil {
		return m.FailStart
	}
	if m.Started {
		return m.violate("started twice")
	}
	if len(m.Tracks) == 0 {
		return m.violate("start without tracks")
	}
	m.Started = true
	m.Events = append(m.Events, "start")
	return nil
}

func (m *Muxer) WriteSample(track int, data []byte, info media.SampleInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Started {
		return m.violate("write to track %d before start", track)
	}
	if track < 0 || track >= len(m.Tracks) {
		return m.violate("write to unregistered track %d", track)
	}
	if m.FailWrite[info.TimestampUs] {
		return fmt.Errorf("rejected sample at %d", info.TimestampUs)
	}
	if m.lastTs == nil {
		m.lastTs = make(map[int]int64)
	}
	if last, ok := m.lastTs[track]; ok && info.TimestampUs < last {
		return m.violate("track %d timestamp regression %d < %d", track, info.TimestampUs, last)
	}
	m.lastTs[track] = info.TimestampUs

	cp := make([]byte, len(data))
	copy(cp, data)
	m.Samples = append(m.Samples, media.Sample{TrackIndex: track, Data: cp, TimestampUs: info.TimestampUs, Flags: info.Flags})
	m.Events = append(m.Events, fmt.Sprintf("write:%d", track))
	return nil
}

func (m *Muxer) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.Started {
		return m.violate("stop before start")
	}
	m.Stopped = true
	m.Events = append(m.Events, "stop")
	return nil
}

func (m *Muxer) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Released = true
	return nil
}

// SamplesFor returns the samples written to one track.
func (m *Muxer) SamplesFor(track int) []media.Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []media.Sample
	for _, s := range m.Samples {
		if s.TrackIndex == track {
			out = append(out, s)
		}
	}
	return out
}

// FrameSource serves solid frames of a fixed size.
type FrameSource struct {
	Info media.SourceInfo
	// OpenErr is returned by Open.
	OpenErr error
	// Unavailable lists timestamps with no frame.
	Unavailable map[int64]bool
	// R, G, B is the fill color.
	R, G, B uint8

	mu        sync.Mutex
	Requested []int64
	Closed    bool
}

func (s *FrameSource) Open(context.Context, string) (media.SourceInfo, error) {
	if s.OpenErr != nil {
		return media.SourceInfo{}, s.OpenErr
	}
	return s.Info, nil
}

func (s *FrameSource) FrameAt(_ context.Context, ts int64) (pixel.Buffer, error) {
	s.mu.Lock()
	s.Requested = append(s.Requested, ts)
	s.mu.Unlock()
	if s.Unavailable[ts] {
		return pixel.Buffer{}, media.ErrFrameUnavailable
	}
	return pixel.Fill(s.Info.Width, s.Info.Height, s.R, s.G, s.B, 255), nil
}

func (s *FrameSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// AudioSource replays a fixed list of samples.
type AudioSource struct {
	Fmt     media.TrackFormat
	Samples []media.Sample
	Closed  bool
	next    int
}

func (a *AudioSource) Format() media.TrackFormat { return a.Fmt }

func (a *AudioSource) ReadSample() (media.Sample, error) {
	if a.next >= len(a.Samples) {
		return media.Sample{}, io.EOF
	}
	s := a.Samples[a.next]
	a.next++
	return s, nil
}

func (a *AudioSource) Close() error {
	a.Closed = true
	return nil
}

// SilentAAC builds n consecutive AAC frames at 48 kHz.
func SilentAAC(n int) *AudioSource {
	src := &AudioSource{Fmt: media.TrackFormat{Kind: media.TrackAudio, Codec: media.CodecAAC, SampleRate: 48000, Channels: 2, AACProfile: 1}}
	for i := 0; i < n; i++ {
		src.Samples = append(src.Samples, media.Sample{
			Data:        []byte{0x21, 0x10, 0x04, byte(i)},
			TimestampUs: int64(i) * 1024 * 1_000_000 / 48000,
			Flags:       media.FlagKeyFrame,
		})
	}
	return src
}
