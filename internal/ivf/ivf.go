// Package ivf reads and writes the IVF container used to carry raw AV1
// temporal units between ffmpeg processes.
package ivf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the fixed file header length.
	HeaderSize = 32
	// FrameHeaderSize precedes every frame payload.
	FrameHeaderSize = 12
	signature       = "DKIF"
	// maxFrameSize guards against corrupt length fields.
	maxFrameSize = 256 << 20
)

// FourCCAV1 identifies AV1 payloads.
var FourCCAV1 = [4]byte{'A', 'V', '0', '1'}

// ErrBadSignature indicates the stream does not start with an IVF header.
var ErrBadSignature = errors.New("ivf: bad signature")

// Header is the IVF file header. Timestamps are in TimebaseNum/TimebaseDen seconds.
type Header struct {
	FourCC      [4]byte
	Width       uint16
	Height      uint16
	TimebaseDen uint32
	TimebaseNum uint32
	FrameCount  uint32
}

// Frame is one IVF frame: a complete temporal unit for AV1.
type Frame struct {
	PTS  int64
	Data []byte
}

// Reader parses an IVF stream.
type Reader struct {
	r      io.Reader
	header Header
	hdrBuf [FrameHeaderSize]byte
}

// NewReader consumes and validates the file header.
func NewReader(r io.Reader) (*Reader, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("ivf: read header: %w", err)
	}
	if string(buf[0:4]) != signature {
		return nil, ErrBadSignature
	}
	if size := binary.LittleEndian.Uint16(buf[6:8]); size != HeaderSize {
		return nil, fmt.Errorf("ivf: unexpected header size %d", size)
	}

	h := Header{
		Width:       binary.LittleEndian.Uint16(buf[12:14]),
		Height:      binary.LittleEndian.Uint16(buf[14:16]),
		TimebaseDen: binary.LittleEndian.Uint32(buf[16:20]),
		TimebaseNum: binary.LittleEndian.Uint32(buf[20:24]),
		FrameCount:  binary.LittleEndian.Uint32(buf[24:28]),
	}
	copy(h.FourCC[:], buf[8:12])
	return &Reader{r: r, header: h}, nil
}

// Header returns the parsed file header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next frame, or io.EOF at a clean end of stream.
func (r *Reader) Next() (Frame, error) {
	if _, err := io.ReadFull(r.r, r.hdrBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.EOF
		}
		return Frame{}, fmt.Errorf("ivf: read frame header: %w", err)
	}
	size := binary.LittleEndian.Uint32(r.hdrBuf[0:4])
	if size > maxFrameSize {
		return Frame{}, fmt.Errorf("ivf: frame size %d exceeds limit", size)
	}
	pts := int64(binary.LittleEndian.Uint64(r.hdrBuf[4:12]))

	data := make([]byte, size)
	if _, err := io.ReadFull(r.r, data); err != nil {
		return Frame{}, fmt.Errorf("ivf: read frame payload: %w", err)
	}
	return Frame{PTS: pts, Data: data}, nil
}

// Writer produces an IVF stream.
type Writer struct {
	w      io.Writer
	header Header
	frames uint32
}

// NewWriter writes the file header immediately. FrameCount is filled in by
// Close when w is seekable.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	wr := &Writer{w: w, header: h}
	if err := wr.writeHeader(); err != nil {
		return nil, err
	}
	return wr, nil
}

func (w *Writer) writeHeader() error {
	var buf [HeaderSize]byte
	copy(buf[0:4], signature)
	binary.LittleEndian.PutUint16(buf[4:6], 0)
	binary.LittleEndian.PutUint16(buf[6:8], HeaderSize)
	copy(buf[8:12], w.header.FourCC[:])
	binary.LittleEndian.PutUint16(buf[12:14], w.header.Width)
	binary.LittleEndian.PutUint16(buf[14:16], w.header.Height)
	binary.LittleEndian.PutUint32(buf[16:20], w.header.TimebaseDen)
	binary.LittleEndian.PutUint32(buf[20:24], w.header.TimebaseNum)
	binary.LittleEndian.PutUint32(buf[24:28], w.header.FrameCount)
	if _, err := w.w.Write(buf[:]); err != nil {
		return fmt.Errorf("ivf: write header: %w", err)
	}
	return nil
}

// WriteFrame appends one frame.
func (w *Writer) WriteFrame(pts int64, data []byte) error {
	var hdr [FrameHeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint64(hdr[4:12], uint64(pts))
	if _, err := w.w.Write(hdr[:]); err != nil {
		return fmt.Errorf("ivf: write frame header: %w", err)
	}
	if _, err := w.w.Write(data); err != nil {
		return fmt.Errorf("ivf: write frame payload: %w", err)
	}
	w.frames++
	return nil
}

// Frames returns the number of frames written.
func (w *Writer) Frames() uint32 {
	return w.frames
}

// Close patches the frame count into the header if the destination supports
// seeking. It does not close the underlying writer.
func (w *Writer) Close() error {
	ws, ok := w.w.(io.WriteSeeker)
	if !ok {
		return nil
	}
	if _, err := ws.Seek(24, io.SeekStart); err != nil {
		return fmt.Errorf("ivf: seek to frame count: %w", err)
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], w.frames)
	if _, err := ws.Write(buf[:]); err != nil {
		return fmt.Errorf("ivf: write frame count: %w", err)
	}
	_, err := ws.Seek(0, io.SeekEnd)
	return err
}
