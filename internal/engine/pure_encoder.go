// ABOUTME: Pure-Go encoder backend emitting verbatim-subframe FLAC streams
// ABOUTME: Writes frame headers, CRCs and STREAMINFO directly, all byte-aligned depths
package engine

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
)

// pureEncoder writes a FLAC stream through the encoder callbacks without
// touching a compression core. Every frame stores its samples verbatim,
// which keeps the stream lossless at any supported depth, including the
// 32-bit frames mewkiz/flac cannot encode. Restricting the backend to
// byte-aligned sample depths keeps every field of a verbatim frame on a
// byte boundary, so frames are assembled with plain byte writes.
type pureEncoder struct {
	cfg       EncoderConfig
	cb        EncoderCallbacks
	blockSize int
	bpsCode   byte
	rateCode  byte
	rateTail  []byte // uncommon sample rate bytes, after the block size

	pending  []int32
	frameNum uint64
	written  uint64
	frameMin int
	frameMax int
	sum      hash.Hash

	seekable bool
	finished bool
	failed   bool
	lastErr  error
}

func (pureEngine) NewEncoder(cfg EncoderConfig, cb EncoderCallbacks) (Encoder, error) {
	if cb.Write == nil {
		return nil, errors.New("write callback is required")
	}
	if cfg.Channels < 1 || cfg.Channels > 8 {
		return nil, fmt.Errorf("invalid channel count %d", cfg.Channels)
	}
	bpsCode, ok := sampleSizeCode(cfg.BitsPerSample)
	if !ok {
		return nil, fmt.Errorf("unsupported bits per sample %d", cfg.BitsPerSample)
	}
	rateCode, rateTail, ok := sampleRateCode(cfg.SampleRate)
	if !ok {
		return nil, fmt.Errorf("invalid sample rate %d", cfg.SampleRate)
	}
	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = defaultBlockSize
	}
	if blockSize < 16 || blockSize > 65535 {
		return nil, fmt.Errorf("invalid block size %d", blockSize)
	}
	if cfg.StreamableSubset {
		if blockSize > 16384 {
			return nil, fmt.Errorf("block size %d exceeds streamable subset", blockSize)
		}
		if cfg.SampleRate <= 48000 && blockSize > 4608 {
			return nil, fmt.Errorf("block size %d exceeds streamable subset at %d Hz",
				blockSize, cfg.SampleRate)
		}
	}

	e := &pureEncoder{
		cfg:       cfg,
		cb:        cb,
		blockSize: blockSize,
		bpsCode:   bpsCode,
		rateCode:  rateCode,
		rateTail:  rateTail,
		sum:       md5.New(),
		seekable:  cb.Seek != nil && cb.Tell != nil,
	}

	hdr := make([]byte, 0, 42)
	hdr = append(hdr, 'f', 'L', 'a', 'C')
	hdr = append(hdr, 0x80, 0x00, 0x00, 34) // last metadata block, STREAMINFO
	hdr = append(hdr, e.streamInfoBody(cfg.TotalSamplesEstimate, [16]byte{})...)
	if cb.Write(hdr, 0, 0) != WriteContinue {
		return nil, errors.New("write callback aborted")
	}
	return e, nil
}

// sampleSizeCode maps a bit depth to its frame header code. Only depths
// that land subframe samples on byte boundaries are supported.
func sampleSizeCode(bps int) (byte, bool) {
	switch bps {
	case 8:
		return 1, true
	case 16:
		return 4, true
	case 24:
		return 6, true
	case 32:
		return 7, true
	}
	return 0, false
}

// sampleRateCode maps a rate to its frame header code plus any trailing
// bytes the code calls for. Every frame states its rate explicitly so
// decoders never have to consult STREAMINFO.
func sampleRateCode(rate int) (byte, []byte, bool) {
	switch rate {
	case 88200:
		return 1, nil, true
	case 176400:
		return 2, nil, true
	case 192000:
		return 3, nil, true
	case 8000:
		return 4, nil, true
	case 16000:
		return 5, nil, true
	case 22050:
		return 6, nil, true
	case 24000:
		return 7, nil, true
	case 32000:
		return 8, nil, true
	case 44100:
		return 9, nil, true
	case 48000:
		return 10, nil, true
	case 96000:
		return 11, nil, true
	}
	switch {
	case rate >= 1 && rate <= 65535:
		return 13, []byte{byte(rate >> 8), byte(rate)}, true
	case rate > 65535 && rate <= 655350 && rate%10 == 0:
		r := rate / 10
		return 14, []byte{byte(r >> 8), byte(r)}, true
	}
	return 0, nil, false
}

// streamInfoBody packs the 34-byte STREAMINFO block. Written once with
// provisional values at init and again from Finish when the output is
// seekable.
func (e *pureEncoder) streamInfoBody(total uint64, digest [16]byte) []byte {
	b := make([]byte, 34)
	binary.BigEndian.PutUint16(b[0:], uint16(e.blockSize))
	binary.BigEndian.PutUint16(b[2:], uint16(e.blockSize))
	putUint24(b[4:], uint32(e.frameMin))
	putUint24(b[7:], uint32(e.frameMax))
	packed := uint64(e.cfg.SampleRate)<<44 |
		uint64(e.cfg.Channels-1)<<41 |
		uint64(e.cfg.BitsPerSample-1)<<36 |
		total&0xFFFFFFFFF
	binary.BigEndian.PutUint64(b[10:], packed)
	copy(b[18:], digest[:])
	return b
}

func putUint24(b []byte, v uint32) {
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// codedNumber encodes a frame number in the extended UTF-8 scheme frame
// headers use, covering up to 36 bits.
func codedNumber(n uint64) []byte {
	switch {
	case n < 0x80:
		return []byte{byte(n)}
	case n < 0x800:
		return []byte{0xC0 | byte(n>>6), 0x80 | byte(n)&0x3F}
	case n < 0x10000:
		return []byte{0xE0 | byte(n>>12), 0x80 | byte(n>>6)&0x3F, 0x80 | byte(n)&0x3F}
	case n < 0x200000:
		return []byte{0xF0 | byte(n>>18), 0x80 | byte(n>>12)&0x3F,
			0x80 | byte(n>>6)&0x3F, 0x80 | byte(n)&0x3F}
	case n < 0x4000000:
		return []byte{0xF8 | byte(n>>24), 0x80 | byte(n>>18)&0x3F,
			0x80 | byte(n>>12)&0x3F, 0x80 | byte(n>>6)&0x3F, 0x80 | byte(n)&0x3F}
	case n < 0x80000000:
		return []byte{0xFC | byte(n>>30), 0x80 | byte(n>>24)&0x3F,
			0x80 | byte(n>>18)&0x3F, 0x80 | byte(n>>12)&0x3F,
			0x80 | byte(n>>6)&0x3F, 0x80 | byte(n)&0x3F}
	default:
		return []byte{0xFE, 0x80 | byte(n>>30)&0x3F, 0x80 | byte(n>>24)&0x3F,
			0x80 | byte(n>>18)&0x3F, 0x80 | byte(n>>12)&0x3F,
			0x80 | byte(n>>6)&0x3F, 0x80 | byte(n)&0x3F}
	}
}

// crc8 is the frame header checksum: polynomial 0x07, initial value 0.
func crc8(data []byte) byte {
	var crc byte
	for _, b := range data {
		crc ^= b
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x07
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// crc16 is the whole-frame checksum: polynomial 0x8005, initial value 0.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x8005
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func (e *pureEncoder) Process(samples []int32, n int) bool {
	if e.failed || e.finished {
		return false
	}
	need := n * e.cfg.Channels
	if n <= 0 || len(samples) < need {
		e.failed = true
		e.lastErr = errors.New("short sample buffer")
		return false
	}
	e.pending = append(e.pending, samples[:need]...)
	for len(e.pending) >= e.blockSize*e.cfg.Channels {
		if !e.emitFrame(e.blockSize) {
			return false
		}
	}
	return true
}

// emitFrame hashes and writes one frame of n samples per channel from the
// front of the pending buffer.
func (e *pureEncoder) emitFrame(n int) bool {
	channels := e.cfg.Channels
	width := e.cfg.BitsPerSample / 8
	chunk := e.pending[:n*channels]

	// STREAMINFO MD5 covers the unencoded samples, interleaved,
	// little-endian, width bytes each.
	raw := make([]byte, len(chunk)*width)
	for i, s := range chunk {
		v := uint32(s)
		for b := 0; b < width; b++ {
			raw[i*width+b] = byte(v >> (8 * b))
		}
	}
	e.sum.Write(raw)

	var f bytes.Buffer
	f.WriteByte(0xFF) // sync code, fixed block size strategy
	f.WriteByte(0xF8)
	f.WriteByte(0x70 | e.rateCode) // block size code 7: 16-bit size follows
	f.WriteByte(byte(channels-1)<<4 | e.bpsCode<<1)
	f.Write(codedNumber(e.frameNum))
	f.WriteByte(byte((n - 1) >> 8))
	f.WriteByte(byte(n - 1))
	f.Write(e.rateTail)
	f.WriteByte(crc8(f.Bytes()))
	for ch := 0; ch < channels; ch++ {
		f.WriteByte(0x02) // subframe type: verbatim
		for i := 0; i < n; i++ {
			v := uint32(chunk[i*channels+ch])
			for b := width - 1; b >= 0; b-- {
				f.WriteByte(byte(v >> (8 * b)))
			}
		}
	}
	sum := crc16(f.Bytes())
	f.WriteByte(byte(sum >> 8))
	f.WriteByte(byte(sum))

	size := f.Len()
	if e.frameMin == 0 || size < e.frameMin {
		e.frameMin = size
	}
	if size > e.frameMax {
		e.frameMax = size
	}

	if e.cb.Write(f.Bytes(), n, uint32(e.frameNum)) != WriteContinue {
		e.failed = true
		e.lastErr = errors.New("write callback aborted")
		return false
	}
	e.frameNum++
	e.written += uint64(n)
	e.pending = e.pending[n*channels:]
	return true
}

// Finish flushes any partial final frame, backpatches STREAMINFO when the
// output is seekable and fires the metadata callback with final totals.
func (e *pureEncoder) Finish() bool {
	if e.finished {
		return !e.failed
	}
	e.finished = true
	if e.failed {
		return false
	}
	if n := len(e.pending) / e.cfg.Channels; n > 0 {
		if !e.emitFrame(n) {
			return false
		}
	}

	var digest [16]byte
	copy(digest[:], e.sum.Sum(nil))
	if e.seekable {
		end, st := e.cb.Tell()
		if st != TellOK {
			return e.abort("tell callback failed")
		}
		if e.cb.Seek(8) != SeekOK {
			return e.abort("seek callback failed")
		}
		if e.cb.Write(e.streamInfoBody(e.written, digest), 0, 0) != WriteContinue {
			return e.abort("write callback aborted")
		}
		if e.cb.Seek(end) != SeekOK {
			return e.abort("seek callback failed")
		}
	}
	if e.cb.Metadata != nil {
		e.cb.Metadata(StreamInfo{
			SampleRate:    e.cfg.SampleRate,
			Channels:      e.cfg.Channels,
			BitsPerSample: e.cfg.BitsPerSample,
			BlockSizeMin:  e.blockSize,
			BlockSizeMax:  e.blockSize,
			TotalSamples:  e.written,
			MD5:           digest,
		})
	}
	return true
}

func (e *pureEncoder) abort(reason string) bool {
	e.failed = true
	e.lastErr = errors.New(reason)
	return false
}

func (e *pureEncoder) StateString() string {
	if e.lastErr != nil {
		return e.lastErr.Error()
	}
	if e.finished {
		return "finished"
	}
	return "ok"
}

func (e *pureEncoder) Close() {
	e.finished = true
	e.pending = nil
}
