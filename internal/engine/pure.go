// ABOUTME: Pure-Go engine backend, decode side built on mewkiz/flac
// ABOUTME: Same callback contract as the native backend, no shared library needed
package engine

import (
	"bytes"
	"crypto/md5"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/mewkiz/flac"
)

type pureEngine struct{}

// NewPure returns the pure-Go engine backend. It encodes with verbatim
// subframes (the compression level is accepted but has no effect) and
// decodes any stream mewkiz/flac can parse.
func NewPure() Engine { return pureEngine{} }

func (pureEngine) Name() string { return "pure" }

const defaultBlockSize = 4096

// -- Decoder

// callbackReader adapts the engine read callback to the io.Reader the
// mewkiz parser pulls from.
type callbackReader struct {
	cb  *DecoderCallbacks
	eof bool
}

func (r *callbackReader) Read(p []byte) (int, error) {
	if r.eof {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, st := r.cb.Read(p)
		switch st {
		case ReadContinue:
			if n == 0 {
				continue
			}
			return n, nil
		case ReadEOF:
			r.eof = true
			if n > 0 {
				return n, nil
			}
			return 0, io.EOF
		default:
			return n, errors.New("read callback aborted")
		}
	}
}

// callbackReadSeeker additionally satisfies io.Seeker through the seek,
// tell and length callbacks, enabling sample-accurate seeking.
type callbackReadSeeker struct {
	callbackReader
}

func (r *callbackReadSeeker) Seek(offset int64, whence int) (int64, error) {
	var base uint64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		cur, st := r.cb.Tell()
		if st != TellOK {
			return 0, errors.New("tell callback failed")
		}
		base = cur
	case io.SeekEnd:
		length, st := r.cb.Length()
		if st != LengthOK {
			return 0, errors.New("length callback failed")
		}
		base = length
	default:
		return 0, fmt.Errorf("unsupported whence %d", whence)
	}
	target := int64(base) + offset
	if target < 0 {
		return 0, errors.New("negative seek offset")
	}
	if r.cb.Seek(uint64(target)) != SeekOK {
		return 0, errors.New("seek callback failed")
	}
	r.eof = false
	return target, nil
}

type pureDecoder struct {
	cfg      DecoderConfig
	cb       DecoderCallbacks
	stream   *flac.Stream
	seekable bool
	state    DecoderState
	pos      uint64 // sample number of the next frame in stream order
	info     StreamInfo
	hasInfo  bool
	sum      hash.Hash
	seeked   bool
	closed   bool
	lastErr  error
}

func (pureEngine) NewDecoder(cfg DecoderConfig, cb DecoderCallbacks) (Decoder, error) {
	if cb.Read == nil || cb.Write == nil {
		return nil, errors.New("read and write callbacks are required")
	}
	d := &pureDecoder{cfg: cfg, cb: cb, state: StateSearchMetadata}
	d.seekable = cb.Seek != nil && cb.Tell != nil && cb.Length != nil
	if cfg.MD5Check {
		d.sum = md5.New()
	}
	return d, nil
}

// open parses the stream header. Deferred to the first process or seek
// call so that read callbacks only fire while a call is in flight.
func (d *pureDecoder) open() bool {
	var s *flac.Stream
	var err error
	if d.seekable {
		s, err = flac.NewSeek(&callbackReadSeeker{callbackReader{cb: &d.cb}})
	} else {
		s, err = flac.New(&callbackReader{cb: &d.cb})
	}
	if err != nil {
		return d.fail(ErrorBadHeader, err)
	}
	d.stream = s
	d.info = StreamInfo{
		SampleRate:    int(s.Info.SampleRate),
		Channels:      int(s.Info.NChannels),
		BitsPerSample: int(s.Info.BitsPerSample),
		BlockSizeMin:  int(s.Info.BlockSizeMin),
		BlockSizeMax:  int(s.Info.BlockSizeMax),
		TotalSamples:  s.Info.NSamples,
		MD5:           s.Info.MD5sum,
	}
	d.hasInfo = true
	d.state = StateSearchFrameSync
	if d.cb.Metadata != nil {
		d.cb.Metadata(d.info)
	}
	return true
}

func (d *pureDecoder) fail(kind ErrorKind, err error) bool {
	d.state = StateAborted
	d.lastErr = err
	if d.cb.Error != nil {
		d.cb.Error(kind)
	}
	return false
}

func (d *pureDecoder) ProcessSingle() bool {
	if d.closed {
		return false
	}
	switch d.state {
	case StateAborted, StateMemoryError, StateUninitialized:
		return false
	case StateEndOfStream:
		return true
	}
	if d.stream == nil {
		// Metadata step: one process call consumes the stream header.
		return d.open()
	}
	f, err := d.stream.ParseNext()
	if err == io.EOF {
		d.state = StateEndOfStream
		return true
	}
	if err != nil {
		kind := ErrorLostSync
		if errors.Is(err, io.ErrUnexpectedEOF) {
			kind = ErrorUnparseable
		}
		return d.fail(kind, err)
	}

	blockSize := int(f.Header.BlockSize)
	channels := len(f.Subframes)
	samples := make([]int32, blockSize*channels)
	for ch := 0; ch < channels; ch++ {
		sub := f.Subframes[ch].Samples
		for i := 0; i < blockSize; i++ {
			samples[i*channels+ch] = sub[i]
		}
	}
	blk := Block{
		SampleNumber:  d.pos,
		SampleRate:    int(f.Header.SampleRate),
		Channels:      channels,
		BitsPerSample: int(f.Header.BitsPerSample),
		Samples:       samples,
	}
	d.pos += uint64(blockSize)
	d.hashBlock(blk)
	if d.cb.Write(blk) != WriteContinue {
		d.state = StateAborted
		d.lastErr = errors.New("write callback aborted")
		return false
	}
	d.state = StateSearchFrameSync
	return true
}

// hashBlock folds decoded samples into the running MD5 signature, using
// the stream's little-endian unencoded sample layout. Disabled after a
// seek since the signature covers the stream from the start.
func (d *pureDecoder) hashBlock(blk Block) {
	if d.sum == nil || d.seeked {
		return
	}
	width := blk.BitsPerSample / 8
	buf := make([]byte, len(blk.Samples)*width)
	for i, s := range blk.Samples {
		v := uint32(s)
		for b := 0; b < width; b++ {
			buf[i*width+b] = byte(v >> (8 * b))
		}
	}
	d.sum.Write(buf)
}

func (d *pureDecoder) Seek(sample uint64) bool {
	if d.closed {
		return false
	}
	if !d.seekable {
		d.state = StateSeekError
		return false
	}
	if d.stream == nil && !d.open() {
		return false
	}
	n, err := d.stream.Seek(sample)
	if err != nil {
		d.state = StateSeekError
		d.lastErr = err
		return false
	}
	d.pos = n
	d.seeked = true
	if d.state == StateEndOfStream || d.state == StateSeekError {
		d.state = StateSearchFrameSync
	}
	return true
}

func (d *pureDecoder) Flush() bool {
	if d.closed {
		return false
	}
	if d.state == StateSeekError {
		d.state = StateSearchFrameSync
	}
	return true
}

func (d *pureDecoder) State() DecoderState {
	if d.closed {
		return StateUninitialized
	}
	return d.state
}

func (d *pureDecoder) StateString() string {
	if d.lastErr != nil {
		return d.lastErr.Error()
	}
	return d.State().String()
}

var zeroMD5 [16]byte

func (d *pureDecoder) Finish() bool {
	if d.closed {
		return true
	}
	if d.sum != nil && !d.seeked && d.state == StateEndOfStream &&
		d.hasInfo && d.info.MD5 != zeroMD5 {
		if !bytes.Equal(d.sum.Sum(nil), d.info.MD5[:]) {
			return false
		}
	}
	return true
}

func (d *pureDecoder) Close() {
	if d.closed {
		return
	}
	d.closed = true
	if d.stream != nil {
		d.stream.Close()
	}
	d.state = StateUninitialized
}
