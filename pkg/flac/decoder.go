// ABOUTME: Streaming FLAC decoder over an io.Reader
// ABOUTME: Pull-driven processing, block delivery callbacks and sample-accurate seek
package flac

import (
	"fmt"
	"io"

	"github.com/flacstream/flacstream-go/internal/engine"
)

// DecoderConfig configures a stream decoder.
type DecoderConfig struct {
	// OnBlock receives each decoded block in stream order. Required. A
	// non-nil error aborts decoding; the error is returned from the
	// in-flight process call wrapped in a ProcessError.
	OnBlock func(Block) error

	// OnMetadata, if set, receives the stream header once, before the
	// first block is delivered.
	OnMetadata func(StreamInfo)

	// OnError, if set, receives non-fatal stream fault notifications
	// (lost sync, bad frame header, CRC mismatch). The engine recovers
	// and decoding continues unless the fault proves fatal.
	OnError func(error)

	// VerifyMD5 checks the decoded output against the MD5 signature in
	// the stream header. The mismatch is reported by Finish. Streams
	// without a signature pass trivially.
	VerifyMD5 bool
}

// StreamDecoder decodes a FLAC stream read from an io.Reader, handing
// decoded blocks to the OnBlock callback one process call at a time. If
// the reader also implements io.ReadSeeker, Seek provides sample-accurate
// repositioning.
//
// Not safe for concurrent use.
type StreamDecoder struct {
	r   io.Reader
	rs  io.ReadSeeker // non-nil when r is seekable
	cfg DecoderConfig
	dec engine.Decoder

	state    State
	released bool
	ioErr    error
	cbErr    error
	info     StreamInfo
	hasInfo  bool

	eof    bool // reader reported io.EOF
	length int64 // cached stream length, -1 until known

	// Seek delivers the frame containing the target mid-call. It is
	// withheld here and trimmed so the first sample handed to OnBlock
	// after a seek is exactly the requested one.
	seeking    bool
	pending    *Block
	trimActive bool
	trimTo     uint64
}

// NewStreamDecoder creates a stream decoder reading from r. No data is
// read until the first Process or Seek call.
func NewStreamDecoder(r io.Reader, cfg DecoderConfig) (*StreamDecoder, error) {
	return newStreamDecoder(engine.Default(), r, cfg)
}

func newStreamDecoder(eng engine.Engine, r io.Reader, cfg DecoderConfig) (*StreamDecoder, error) {
	if cfg.OnBlock == nil {
		return nil, &InitError{Reason: "OnBlock callback is required"}
	}
	d := &StreamDecoder{r: r, cfg: cfg, state: StateReady, length: -1}
	d.rs, _ = r.(io.ReadSeeker)

	cb := engine.DecoderCallbacks{
		Read:  d.onRead,
		Write: d.onBlock,
		EOF:   func() bool { return d.eof },
		Metadata: func(info engine.StreamInfo) {
			d.info = streamInfoFromEngine(info)
			d.hasInfo = true
			if d.cfg.OnMetadata != nil {
				d.cfg.OnMetadata(d.info)
			}
		},
		Error: func(kind engine.ErrorKind) {
			if d.cfg.OnError != nil {
				d.cfg.OnError(fmt.Errorf("flac: stream error: %s", kind))
			}
		},
	}
	if d.rs != nil {
		cb.Seek = d.onSeek
		cb.Tell = d.onTell
		cb.Length = d.onLength
	}

	dec, err := eng.NewDecoder(engine.DecoderConfig{MD5Check: cfg.VerifyMD5}, cb)
	if err != nil {
		return nil, &InitError{Reason: err.Error()}
	}
	d.dec = dec
	return d, nil
}

func (d *StreamDecoder) onRead(p []byte) (int, engine.ReadStatus) {
	if d.eof {
		return 0, engine.ReadEOF
	}
	n, err := d.r.Read(p)
	switch {
	case err == nil:
		return n, engine.ReadContinue
	case err == io.EOF:
		d.eof = true
		if n > 0 {
			return n, engine.ReadContinue
		}
		return 0, engine.ReadEOF
	default:
		d.ioErr = err
		return n, engine.ReadAbort
	}
}

func (d *StreamDecoder) onSeek(offset uint64) engine.SeekStatus {
	if _, err := d.rs.Seek(int64(offset), io.SeekStart); err != nil {
		d.ioErr = err
		return engine.SeekFailed
	}
	d.eof = false
	return engine.SeekOK
}

func (d *StreamDecoder) onTell() (uint64, engine.TellStatus) {
	pos, err := d.rs.Seek(0, io.SeekCurrent)
	if err != nil {
		d.ioErr = err
		return 0, engine.TellFailed
	}
	return uint64(pos), engine.TellOK
}

func (d *StreamDecoder) onLength() (uint64, engine.LengthStatus) {
	if d.length >= 0 {
		return uint64(d.length), engine.LengthOK
	}
	cur, err := d.rs.Seek(0, io.SeekCurrent)
	if err == nil {
		var end int64
		end, err = d.rs.Seek(0, io.SeekEnd)
		if err == nil {
			d.length = end
			_, err = d.rs.Seek(cur, io.SeekStart)
		}
	}
	if err != nil {
		d.ioErr = err
		return 0, engine.LengthFailed
	}
	return uint64(d.length), engine.LengthOK
}

func (d *StreamDecoder) onBlock(b engine.Block) engine.WriteStatus {
	blk := Block{
		SampleNumber:  b.SampleNumber,
		SampleRate:    b.SampleRate,
		Channels:      b.Channels,
		BitsPerSample: b.BitsPerSample,
		Samples:       b.Samples,
	}
	if d.seeking {
		d.pending = &blk
		return engine.WriteContinue
	}
	return d.deliver(blk)
}

// deliver trims a post-seek block down to the requested sample and hands
// it to OnBlock.
func (d *StreamDecoder) deliver(blk Block) engine.WriteStatus {
	if d.trimActive {
		if blk.SampleNumber+uint64(blk.NumSamples()) <= d.trimTo {
			// Frame ends before the target; skip it entirely.
			return engine.WriteContinue
		}
		if blk.SampleNumber < d.trimTo {
			skip := int(d.trimTo-blk.SampleNumber) * blk.Channels
			blk.Samples = blk.Samples[skip:]
			blk.SampleNumber = d.trimTo
		}
		d.trimActive = false
	}
	if blk.NumSamples() == 0 {
		return engine.WriteContinue
	}
	if err := d.callOnBlock(blk); err != nil {
		d.cbErr = err
		return engine.WriteAbort
	}
	return engine.WriteContinue
}

// callOnBlock guards the user callback: with the native backend this
// runs beneath foreign stack frames, where a panic must not unwind.
func (d *StreamDecoder) callOnBlock(blk Block) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("flac: OnBlock panicked: %v", r)
		}
	}()
	return d.cfg.OnBlock(blk)
}

// State reports the decoder lifecycle state.
func (d *StreamDecoder) State() State { return d.state }

// Metadata returns the stream header and whether it has been read yet.
// It is available after the first successful process or seek call.
func (d *StreamDecoder) Metadata() (StreamInfo, bool) { return d.info, d.hasInfo }

// ProcessSingle decodes one unit of the stream: the stream header or a
// single frame. It returns (true, nil) when more input may remain and
// (false, nil) at a clean end of stream. At most one block is delivered
// to OnBlock per call.
func (d *StreamDecoder) ProcessSingle() (bool, error) {
	switch d.state {
	case StateFinished:
		return false, nil
	case StateError:
		return false, &ProcessError{Reason: "decoder in error state"}
	}
	if d.pending != nil {
		blk := *d.pending
		d.pending = nil
		if d.deliver(blk) != engine.WriteContinue {
			d.state = StateError
			return false, &ProcessError{Reason: "block callback failed", Err: d.cbErr}
		}
		d.state = StateProcessing
		return true, nil
	}
	if !d.dec.ProcessSingle() {
		d.state = StateError
		return false, d.processFailure()
	}
	if d.dec.State() == engine.StateEndOfStream {
		d.state = StateFinished
		return false, nil
	}
	d.state = StateProcessing
	return true, nil
}

func (d *StreamDecoder) processFailure() error {
	if d.ioErr != nil {
		return &IOCallbackError{Op: "read", Err: d.ioErr}
	}
	if d.cbErr != nil {
		return &ProcessError{Reason: "block callback failed", Err: d.cbErr}
	}
	return &ProcessError{Reason: d.dec.StateString()}
}

// ProcessAll decodes the remainder of the stream, delivering every block
// to OnBlock. It returns nil at a clean end of stream.
func (d *StreamDecoder) ProcessAll() error {
	for {
		more, err := d.ProcessSingle()
		if err != nil {
			return err
		}
		if !more {
			return nil
		}
	}
}

// Seek positions the decoder so that the next block delivered to OnBlock
// starts exactly at the given sample number. The underlying reader must
// implement io.ReadSeeker. A failed seek leaves the decoder usable; the
// returned SeekError reports the failure.
func (d *StreamDecoder) Seek(sample uint64) error {
	if d.state == StateError {
		return &ProcessError{Reason: "decoder in error state"}
	}
	if d.rs == nil {
		return &SeekError{Reason: "stream is not seekable"}
	}
	d.pending = nil
	d.trimActive = true
	d.trimTo = sample
	d.seeking = true
	ok := d.dec.Seek(sample)
	d.seeking = false
	if !ok {
		d.trimActive = false
		d.pending = nil
		// Flush resynchronizes the engine so the instance stays usable.
		d.dec.Flush()
		if d.ioErr != nil {
			err := &IOCallbackError{Op: "seek", Err: d.ioErr}
			d.ioErr = nil
			return err
		}
		return &SeekError{Reason: fmt.Sprintf("cannot reach sample %d", sample)}
	}
	if d.state == StateFinished || d.state == StateReady {
		d.state = StateProcessing
	}
	return nil
}

// Finish releases the engine handle and reports the result of MD5
// verification when it was requested. Idempotent: later calls return
// nil.
func (d *StreamDecoder) Finish() error {
	if d.released {
		return nil
	}
	ok := d.dec.Finish()
	d.dec.Close()
	d.released = true
	prior := d.state
	d.state = StateFinished
	if !ok && prior != StateError {
		return &ProcessError{Reason: "MD5 signature mismatch"}
	}
	return nil
}

// Close is an alias for Finish.
func (d *StreamDecoder) Close() error { return d.Finish() }
