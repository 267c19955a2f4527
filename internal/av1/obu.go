// Package av1 walks low-overhead AV1 bitstreams (OBUs with size fields), as
// produced in IVF by ffmpeg's libsvtav1 wrapper.
package av1

import (
	"errors"
	"fmt"
)

// OBU types.
const (
	OBUSequenceHeader       = 1
	OBUTemporalDelimiter    = 2
	OBUFrameHeader          = 3
	OBUTileGroup            = 4
	OBUMetadata             = 5
	OBUFrame                = 6
	OBURedundantFrameHeader = 7
	OBUTileList             = 8
	OBUPadding              = 15
)

// Frame types from the uncompressed header.
const (
	FrameKey       = 0
	FrameInter     = 1
	FrameIntraOnly = 2
	FrameSwitch    = 3
)

var errTruncated = errors.New("av1: truncated obu")

// OBU is one open bitstream unit. Raw covers the header, size field and payload.
type OBU struct {
	Type    int
	Payload []byte
	Raw     []byte
}

// ReadLEB128 decodes an unsigned LEB128 value and returns it with its length.
func ReadLEB128(b []byte) (uint64, int, error) {
	var v uint64
	for i := 0; i < 8; i++ {
		if i >= len(b) {
			return 0, 0, errTruncated
		}
		v |= uint64(b[i]&0x7F) << (7 * i)
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("av1: leb128 longer than 8 bytes")
}

// Parse splits a temporal unit into its OBUs.
func Parse(data []byte) ([]OBU, error) {
	var obus []OBU
	for off := 0; off < len(data); {
		start := off
		header := data[off]
		if header&0x80 != 0 {
			return nil, fmt.Errorf("av1: forbidden bit set at offset %d", off)
		}
		typ := int(header>>3) & 0x0F
		hasExtension := header&0x04 != 0
		hasSize := header&0x02 != 0
		off++
		if hasExtension {
			off++
		}
		if off > len(data) {
			return nil, errTruncated
		}

		var size int
		if hasSize {
			v, n, err := ReadLEB128(data[off:])
			if err != nil {
				return nil, err
			}
			off += n
			size = int(v)
		} else {
			size = len(data) - off
		}
		if size < 0 || off+size > len(data) {
			return nil, errTruncated
		}

		obus = append(obus, OBU{
			Type:    typ,
			Payload: data[off : off+size],
			Raw:     data[start : off+size],
		})
		off += size
	}
	return obus, nil
}

// SequenceHeader returns a copy of the first sequence header OBU in data.
func SequenceHeader(data []byte) ([]byte, bool) {
	obus, err := Parse(data)
	if err != nil {
		return nil, false
	}
	for _, o := range obus {
		if o.Type == OBUSequenceHeader {
			return append([]byte(nil), o.Raw...), true
		}
	}
	return nil, false
}

// IsKeyFrame reports whether the temporal unit starts a key frame. It reads
// frame_type from the first frame header, which assumes the stream does not
// use reduced still-picture headers.
func IsKeyFrame(data []byte) bool {
	obus, err := Parse(data)
	if err != nil {
		return false
	}
	for _, o := range obus {
		if o.Type != OBUFrame && o.Type != OBUFrameHeader {
			continue
		}
		if len(o.Payload) == 0 {
			return false
		}
		showExisting := o.Payload[0]&0x80 != 0
		if showExisting {
			return false
		}
		return int(o.Payload[0]>>5)&0x03 == FrameKey
	}
	return false
}
