package adts

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAndParseHeader(t *testing.T) {
	idx, err := SampleRateIndex(48000)
	require.NoError(t, err)
	assert.Equal(t, uint8(3), idx)

	hdr := BuildHeader(1, idx, 2, 371)
	h, err := ParseHeader(hdr[:])
	require.NoError(t, err)

	assert.Equal(t, uint8(1), h.Profile)
	assert.Equal(t, 48000, h.SampleRate())
	assert.Equal(t, uint8(2), h.ChannelConfig)
	assert.Equal(t, 378, h.FrameLength)
	assert.Equal(t, HeaderSize, h.HeaderLength)
	assert.Equal(t, 1, h.RawBlocks)
}

func TestParseHeaderKnownBytes(t *testing.T) {
	// 44.1 kHz stereo AAC-LC, 0x173 bytes, as written by ffmpeg
	b := []byte{0xFF, 0xF1, 0x50, 0x80, 0x2E, 0x7F, 0xFC}
	h, err := ParseHeader(b)
	require.NoError(t, err)
	assert.Equal(t, 44100, h.SampleRate())
	assert.Equal(t, uint8(2), h.ChannelConfig)
	assert.Equal(t, 0x173, h.FrameLength)
}

func TestParseHeaderErrors(t *testing.T) {
	_, err := ParseHeader([]byte{0xFF, 0xF1})
	assert.Error(t, err)

	_, err = ParseHeader([]byte{0x00, 0x00, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrNoSync)

	reserved := BuildHeader(1, 14, 2, 10)
	_, err = ParseHeader(reserved[:])
	assert.Error(t, err)
}

func TestSampleRateIndexUnsupported(t *testing.T) {
	_, err := SampleRateIndex(44000)
	assert.Error(t, err)
}

func TestWriterReaderStream(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 1, 48000, 2)
	require.NoError(t, err)

	payloads := [][]byte{{0x21, 0x10}, {0x21, 0x11, 0x05}, {}}
	for _, p := range payloads {
		require.NoError(t, w.WritePayload(p))
	}

	r := NewReader(&buf)
	for i, want := range payloads {
		h, got, err := r.Next()
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, want, got)
		assert.Equal(t, 48000, h.SampleRate())
	}
	_, _, err = r.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestReaderTruncated(t *testing.T) {
	hdr := BuildHeader(1, 3, 2, 10)
	r := NewReader(bytes.NewReader(append(hdr[:], 1, 2, 3)))
	_, _, err := r.Next()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestNewWriterValidation(t *testing.T) {
	_, err := NewWriter(io.Discard, 1, 12345, 2)
	assert.Error(t, err)
	_, err = NewWriter(io.Discard, 1, 48000, 0)
	assert.Error(t, err)
	_, err = NewWriter(io.Discard, 1, 48000, 7)
	assert.Error(t, err)
}

func TestChannelConfig(t *testing.T) {
	tests := []struct {
		channels int
		want     uint8
		wantErr  bool
	}{
		{channels: 1, want: 1},
		{channels: 2, want: 2},
		{channels: 6, want: 6},
		{channels: 7, wantErr: true},
		{channels: 8, want: 7},
		{channels: 0, wantErr: true},
		{channels: 9, wantErr: true},
	}
	for _, tt := range tests {
		cfg, err := ChannelConfig(tt.channels)
		if tt.wantErr {
			assert.Error(t, err, "%d channels", tt.channels)
			continue
		}
		require.NoError(t, err, "%d channels", tt.channels)
		assert.Equal(t, tt.want, cfg, "%d channels", tt.channels)
		assert.Equal(t, tt.channels, Header{ChannelConfig: cfg}.Channels())
	}
}

func TestWriterSevenOneRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 1, 48000, 8)
	require.NoError(t, err)
	require.NoError(t, w.WritePayload([]byte{0x01, 0x02}))

	h, payload, err := NewReader(&buf).Next()
	require.NoError(t, err)
	assert.Equal(t, uint8(7), h.ChannelConfig)
	assert.Equal(t, 8, h.Channels())
	assert.Equal(t, []byte{0x01, 0x02}, payload)
}

func TestReaderPeekDoesNotConsume(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 1, 24000, 2)
	require.NoError(t, err)
	require.NoError(t, w.WritePayload([]byte{0xAA}))

	r := NewReader(&buf)
	peeked, err := r.Peek()
	require.NoError(t, err)
	h, payload, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, peeked, h)
	assert.True(t, peeked.SameConfig(h))
	assert.Equal(t, []byte{0xAA}, payload)

	_, err = r.Peek()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSameConfig(t *testing.T) {
	lc := Header{Profile: 1, SampleRateIndex: 3, ChannelConfig: 2, FrameLength: 100}
	assert.True(t, lc.SameConfig(Header{Profile: 1, SampleRateIndex: 3, ChannelConfig: 2, FrameLength: 20}))
	assert.False(t, lc.SameConfig(Header{Profile: 1, SampleRateIndex: 6, ChannelConfig: 2}))
	assert.False(t, lc.SameConfig(Header{Profile: 1, SampleRateIndex: 3, ChannelConfig: 1}))
}
