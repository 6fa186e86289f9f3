package stream

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/fluid/particles"
)

const (
	frameHeaderSize = 12    // uint64 frame, uint32 count
	instanceSize    = 7 * 4 // position xyz, colour rgba
)

// ErrShortFrame is returned when a frame payload is smaller than its
// header claims.
var ErrShortFrame = errors.New("stream: short frame")

// EncodeFrame appends the little-endian frame encoding to dst: the frame
// number, the instance count, then seven float32 per instance.
func EncodeFrame(dst []byte, frame uint64, instances []particles.Instance) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, frame)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(instances)))
	for _, in := range instances {
		for _, v := range in.Position {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
		}
		for _, v := range in.Color {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
		}
	}
	return dst
}

// DecodeFrame parses a payload produced by EncodeFrame, reusing dst.
func DecodeFrame(b []byte, dst []particles.Instance) (uint64, []particles.Instance, error) {
	if len(b) < frameHeaderSize {
		return 0, nil, fmt.Errorf("%w: %d byte header", ErrShortFrame, len(b))
	}
	frame := binary.LittleEndian.Uint64(b)
	n := int(binary.LittleEndian.Uint32(b[8:]))
	body := b[frameHeaderSize:]
	if len(body) != n*instanceSize {
		return 0, nil, fmt.Errorf("%w: %d instances need %d bytes, got %d", ErrShortFrame, n, n*instanceSize, len(body))
	}

	dst = dst[:0]
	for i := 0; i < n; i++ {
		var in particles.Instance
		off := i * instanceSize
		for k := range in.Position {
			in.Position[k] = math.Float32frombits(binary.LittleEndian.Uint32(body[off+4*k:]))
		}
		off += 12
		for k := range in.Color {
			in.Color[k] = math.Float32frombits(binary.LittleEndian.Uint32(body[off+4*k:]))
		}
		dst = append(dst, in)
	}
	return frame, dst, nil
}
