package encode

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	cerrors "github.com/five82/clarify/internal/errors"
	"github.com/five82/clarify/internal/logging"
	"github.com/five82/clarify/internal/media"
)

// MuxGate owns the muxer's lifecycle for a job. The muxer is started only once
// every expected track is registered, and no sample reaches the muxer before
// then: samples written early are held and flushed in order at start.
type MuxGate struct {
	mu       sync.Mutex
	muxer    media.Muxer
	expected map[media.TrackKind]bool
	tracks   map[media.TrackKind]int
	started  bool
	pending  []media.Sample
	rejected map[int]int
}

// NewMuxGate expects one track of each given kind.
func NewMuxGate(muxer media.Muxer, kinds ...media.TrackKind) *MuxGate {
	expected := make(map[media.TrackKind]bool, len(kinds))
	for _, k := range kinds {
		expected[k] = true
	}
	return &MuxGate{
		muxer:    muxer,
		expected: expected,
		tracks:   make(map[media.TrackKind]int, len(kinds)),
		rejected: make(map[int]int),
	}
}

// Register adds the track for format.Kind and starts the muxer when it was the
// last one outstanding.
func (g *MuxGate) Register(format media.TrackFormat) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.expected[format.Kind] {
		return -1, cerrors.NewResourceInitError(fmt.Sprintf("unexpected %s track", format.Kind), nil)
	}
	if _, ok := g.tracks[format.Kind]; ok {
		return -1, cerrors.NewResourceInitError(fmt.Sprintf("%s track already registered", format.Kind), nil)
	}

	idx, err := g.muxer.AddTrack(format)
	if err != nil {
		return -1, cerrors.NewResourceInitError(fmt.Sprintf("add %s track", format.Kind), err)
	}
	g.tracks[format.Kind] = idx

	logging.WithFields(logrus.Fields{
		"function": "MuxGate.Register",
		"kind":     format.Kind.String(),
		"track":    idx,
		"codec":    format.Codec,
	}).Debug("track registered")

	if len(g.tracks) == len(g.expected) {
		if err := g.muxer.Start(); err != nil {
			return idx, cerrors.NewResourceInitError("start muxer", err)
		}
		g.started = true
		g.flushLocked()
	}
	return idx, nil
}

// WriteSample hands a sample to the muxer, or holds it until the muxer starts.
// A returned error is a rejected write; the gate stays usable.
func (g *MuxGate) WriteSample(track int, data []byte, info media.SampleInfo) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.started {
		held := make([]byte, len(data))
		copy(held, data)
		g.pending = append(g.pending, media.Sample{TrackIndex: track, Data: held, TimestampUs: info.TimestampUs, Flags: info.Flags})
		return nil
	}
	if err := g.muxer.WriteSample(track, data, info); err != nil {
		return cerrors.NewSampleWriteError(track, info.TimestampUs, err)
	}
	return nil
}

func (g *MuxGate) flushLocked() {
	for _, s := range g.pending {
		if err := g.muxer.WriteSample(s.TrackIndex, s.Data, media.SampleInfo{TimestampUs: s.TimestampUs, Flags: s.Flags}); err != nil {
			g.rejected[s.TrackIndex]++
			logging.WithFields(logrus.Fields{
				"function":     "MuxGate.flush",
				"track":        s.TrackIndex,
				"timestamp_us": s.TimestampUs,
			}).Warnf("held sample rejected: %v", err)
		}
	}
	g.pending = nil
}

// Started reports whether the muxer has been started.
func (g *MuxGate) Started() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.started
}

// Track returns the muxer index registered for kind.
func (g *MuxGate) Track(kind media.TrackKind) (int, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx, ok := g.tracks[kind]
	return idx, ok
}

// Rejected returns how many held samples of a track the muxer refused when
// they were flushed at start.
func (g *MuxGate) Rejected(track int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rejected[track]
}

// Pending returns the number of held samples.
func (g *MuxGate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}
