// Package adts parses and builds ADTS headers so raw AAC access units can be
// moved between ffmpeg's adts muxer and a track-based muxer.
package adts

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the header length without CRC.
const HeaderSize = 7

// SamplesPerFrame is the AAC-LC frame length.
const SamplesPerFrame = 1024

// ErrNoSync indicates the data does not start with an ADTS syncword.
var ErrNoSync = errors.New("adts: missing syncword")

var sampleRates = [...]int{96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050, 16000, 12000, 11025, 8000, 7350}

// Header is a parsed ADTS fixed and variable header.
type Header struct {
	// Profile is the MPEG-4 audio object type minus one (1 = AAC-LC).
	Profile         uint8
	SampleRateIndex uint8
	ChannelConfig   uint8
	// FrameLength includes the header.
	FrameLength  int
	HeaderLength int
	RawBlocks    int
}

// SampleRate returns the rate for the header's index, or 0 if reserved.
func (h Header) SampleRate() int {
	if int(h.SampleRateIndex) < len(sampleRates) {
		return sampleRates[h.SampleRateIndex]
	}
	return 0
}

// Channels returns the channel count of the header's configuration, or 0 when
// the layout is carried in a program config element inside the payload.
func (h Header) Channels() int {
	if h.ChannelConfig == 7 {
		return 8
	}
	return int(h.ChannelConfig)
}

// SameConfig reports whether two headers describe the same stream layout.
func (h Header) SameConfig(o Header) bool {
	return h.Profile == o.Profile && h.SampleRateIndex == o.SampleRateIndex && h.ChannelConfig == o.ChannelConfig
}

// ChannelConfig maps a channel count to its ADTS channel configuration.
// Eight channels (7.1) use configuration 7; seven channels have none.
func ChannelConfig(channels int) (uint8, error) {
	switch {
	case channels >= 1 && channels <= 6:
		return uint8(channels), nil
	case channels == 8:
		return 7, nil
	}
	return 0, fmt.Errorf("adts: unsupported channel count %d", channels)
}

// SampleRateIndex maps a sample rate to its ADTS index.
func SampleRateIndex(rate int) (uint8, error) {
	for i, r := range sampleRates {
		if r == rate {
			return uint8(i), nil
		}
	}
	return 0, fmt.Errorf("adts: unsupported sample rate %d", rate)
}

// ParseHeader decodes the header at the start of b.
func ParseHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("adts: header needs %d bytes, have %d", HeaderSize, len(b))
	}
	if b[0] != 0xFF || b[1]&0xF0 != 0xF0 {
		return Header{}, ErrNoSync
	}

	protectionAbsent := b[1]&0x01 == 1
	h := Header{
		Profile:         b[2] >> 6,
		SampleRateIndex: (b[2] >> 2) & 0x0F,
		ChannelConfig:   (b[2]&0x01)<<2 | b[3]>>6,
		FrameLength:     int(b[3]&0x03)<<11 | int(b[4])<<3 | int(b[5])>>5,
		RawBlocks:       int(b[6]&0x03) + 1,
		HeaderLength:    HeaderSize,
	}
	if !protectionAbsent {
		h.HeaderLength += 2
	}
	if h.FrameLength < h.HeaderLength {
		return Header{}, fmt.Errorf("adts: frame length %d shorter than header", h.FrameLength)
	}
	if h.SampleRate() == 0 {
		return Header{}, fmt.Errorf("adts: reserved sample rate index %d", h.SampleRateIndex)
	}
	return h, nil
}

// BuildHeader returns a CRC-less header for a payload of payloadLen bytes.
func BuildHeader(profile, sampleRateIndex, channelConfig uint8, payloadLen int) [HeaderSize]byte {
	frameLen := payloadLen + HeaderSize
	var b [HeaderSize]byte
	b[0] = 0xFF
	b[1] = 0xF1 // MPEG-4, layer 0, no CRC
	b[2] = profile<<6 | (sampleRateIndex&0x0F)<<2 | (channelConfig>>2)&0x01
	b[3] = (channelConfig&0x03)<<6 | byte(frameLen>>11)&0x03
	b[4] = byte(frameLen >> 3)
	b[5] = byte(frameLen&0x07)<<5 | 0x1F
	b[6] = 0xFC // buffer fullness 0x7FF, one raw data block
	return b
}

// Reader splits an ADTS byte stream into headers and raw payloads.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReaderSize(r, 64<<10)}
}

// Peek returns the next frame's header without consuming it, or io.EOF.
func (r *Reader) Peek() (Header, error) {
	head, err := r.r.Peek(HeaderSize)
	if err != nil {
		if errors.Is(err, io.EOF) && len(head) == 0 {
			return Header{}, io.EOF
		}
		return Header{}, fmt.Errorf("adts: read header: %w", io.ErrUnexpectedEOF)
	}
	return ParseHeader(head)
}

// Next returns the next frame's header and payload, or io.EOF.
func (r *Reader) Next() (Header, []byte, error) {
	h, err := r.Peek()
	if err != nil {
		return Header{}, nil, err
	}

	frame := make([]byte, h.FrameLength)
	if _, err := io.ReadFull(r.r, frame); err != nil {
		return Header{}, nil, fmt.Errorf("adts: read frame: %w", io.ErrUnexpectedEOF)
	}
	return h, frame[h.HeaderLength:], nil
}

// Writer prefixes raw AAC payloads with ADTS headers.
type Writer struct {
	w               io.Writer
	profile         uint8
	sampleRateIndex uint8
	channelConfig   uint8
}

// NewWriter creates a writer for one stream configuration.
func NewWriter(w io.Writer, profile uint8, sampleRate, channels int) (*Writer, error) {
	idx, err := SampleRateIndex(sampleRate)
	if err != nil {
		return nil, err
	}
	cfg, err := ChannelConfig(channels)
	if err != nil {
		return nil, err
	}
	return &Writer{w: w, profile: profile, sampleRateIndex: idx, channelConfig: cfg}, nil
}

// WritePayload writes one framed access unit.
func (w *Writer) WritePayload(payload []byte) error {
	if len(payload)+HeaderSize > 0x1FFF {
		return fmt.Errorf("adts: payload of %d bytes too large", len(payload))
	}
	hdr := BuildHeader(w.profile, w.sampleRateIndex, w.channelConfig, len(payload))
	if _, err := w.w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.w.Write(payload)
	return err
}
