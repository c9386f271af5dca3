// ABOUTME: Minimal PCM WAV reader and writer for file conversion
// ABOUTME: Handles 16/24/32-bit integer RIFF/WAVE with chunk skipping
package wav

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Format describes the PCM layout of a WAV file.
type Format struct {
	Channels      int
	SampleRate    int
	BitsPerSample int
}

const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

// Reader decodes integer PCM samples from a RIFF/WAVE stream.
type Reader struct {
	r         io.Reader
	format    Format
	remaining int // frames left in the data chunk
	buf       []byte
}

// NewReader parses the RIFF header and chunk list up to the data chunk.
// Unknown chunks are skipped.
func NewReader(r io.Reader) (*Reader, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return nil, fmt.Errorf("reading RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return nil, errors.New("not a RIFF/WAVE file")
	}

	var format Format
	var blockAlign int
	haveFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return nil, fmt.Errorf("reading chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := int(binary.LittleEndian.Uint32(hdr[4:8]))
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, errors.New("fmt chunk too short")
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return nil, fmt.Errorf("reading fmt chunk: %w", err)
			}
			tag := int(binary.LittleEndian.Uint16(body[0:2]))
			if tag != formatPCM && tag != formatExtensible {
				return nil, fmt.Errorf("unsupported format tag %#x (integer PCM only)", tag)
			}
			format.Channels = int(binary.LittleEndian.Uint16(body[2:4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			blockAlign = int(binary.LittleEndian.Uint16(body[12:14]))
			format.BitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
			switch format.BitsPerSample {
			case 16, 24, 32:
			default:
				return nil, fmt.Errorf("unsupported bit depth %d", format.BitsPerSample)
			}
			if format.Channels < 1 || blockAlign != format.Channels*format.BitsPerSample/8 {
				return nil, errors.New("inconsistent fmt chunk")
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, errors.New("data chunk before fmt chunk")
			}
			return &Reader{
				r:         r,
				format:    format,
				remaining: size / blockAlign,
			}, nil
		default:
			// Chunks are word aligned.
			skip := int64(size + size%2)
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return nil, fmt.Errorf("skipping %q chunk: %w", id, err)
			}
		}
	}
}

// Format returns the PCM layout parsed from the fmt chunk.
func (r *Reader) Format() Format { return r.format }

// NumFrames returns the number of frames declared by the data chunk.
func (r *Reader) NumFrames() int { return r.remaining }

// ReadBlock reads up to the given number of frames and returns them as
// interleaved int32 samples, right-justified at the file's bit depth.
// Returns io.EOF once the data chunk is exhausted.
func (r *Reader) ReadBlock(frames int) ([]int32, error) {
	if r.remaining == 0 {
		return nil, io.EOF
	}
	if frames > r.remaining {
		frames = r.remaining
	}
	width := r.format.BitsPerSample / 8
	frameBytes := width * r.format.Channels
	need := frames * frameBytes
	if cap(r.buf) < need {
		r.buf = make([]byte, need)
	}
	buf := r.buf[:need]
	n, err := io.ReadFull(r.r, buf)
	got := n / frameBytes
	if got == 0 {
		if err == nil || err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return nil, err
	}
	r.remaining -= got

	samples := make([]int32, got*r.format.Channels)
	for i := range samples {
		off := i * width
		switch width {
		case 2:
			samples[i] = int32(int16(binary.LittleEndian.Uint16(buf[off:])))
		case 3:
			v := int32(buf[off]) | int32(buf[off+1])<<8 | int32(buf[off+2])<<16
			samples[i] = v << 8 >> 8 // sign extend
		case 4:
			samples[i] = int32(binary.LittleEndian.Uint32(buf[off:]))
		}
	}
	if err == io.ErrUnexpectedEOF {
		// Short data chunk; deliver what we have and end on the next call.
		r.remaining = 0
		err = nil
	}
	return samples, err
}

// Writer encodes integer PCM samples into a canonical 44-byte-header
// WAV file. The size fields are backpatched on Close.
type Writer struct {
	w      io.WriteSeeker
	format Format
	data   int // bytes written to the data chunk
	closed bool
}

// NewWriter writes the WAV header with placeholder sizes.
func NewWriter(w io.WriteSeeker, f Format) (*Writer, error) {
	switch f.BitsPerSample {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("unsupported bit depth %d", f.BitsPerSample)
	}
	if f.Channels < 1 || f.SampleRate < 1 {
		return nil, errors.New("invalid format")
	}
	width := f.BitsPerSample / 8
	blockAlign := f.Channels * width

	var hdr [44]byte
	copy(hdr[0:4], "RIFF")
	copy(hdr[8:12], "WAVE")
	copy(hdr[12:16], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:20], 16)
	binary.LittleEndian.PutUint16(hdr[20:22], formatPCM)
	binary.LittleEndian.PutUint16(hdr[22:24], uint16(f.Channels))
	binary.LittleEndian.PutUint32(hdr[24:28], uint32(f.SampleRate))
	binary.LittleEndian.PutUint32(hdr[28:32], uint32(f.SampleRate*blockAlign))
	binary.LittleEndian.PutUint16(hdr[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(hdr[34:36], uint16(f.BitsPerSample))
	copy(hdr[36:40], "data")
	if _, err := w.Write(hdr[:]); err != nil {
		return nil, err
	}
	return &Writer{w: w, format: f}, nil
}

// WriteBlock appends interleaved samples to the data chunk.
func (w *Writer) WriteBlock(samples []int32) error {
	if w.closed {
		return errors.New("writer closed")
	}
	width := w.format.BitsPerSample / 8
	buf := make([]byte, len(samples)*width)
	for i, s := range samples {
		v := uint32(s)
		off := i * width
		for b := 0; b < width; b++ {
			buf[off+b] = byte(v >> (8 * b))
		}
	}
	if _, err := w.w.Write(buf); err != nil {
		return err
	}
	w.data += len(buf)
	return nil
}

// Close backpatches the RIFF and data chunk sizes. The underlying
// writer is not closed.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	var size [4]byte
	binary.LittleEndian.PutUint32(size[:], uint32(36+w.data))
	if _, err := w.w.Seek(4, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.w.Write(size[:]); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(size[:], uint32(w.data))
	if _, err := w.w.Seek(40, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.w.Write(size[:]); err != nil {
		return err
	}
	_, err := w.w.Seek(int64(44+w.data), io.SeekStart)
	return err
}
