// ABOUTME: Streaming FLAC encoder over an io.Writer
// ABOUTME: Push interleaved PCM in, compressed bytes come out synchronously
package flac

import (
	"fmt"
	"io"

	"github.com/flacstream/flacstream-go/internal/engine"
)

// CompressionLevelFastest selects compression level 0. The zero value of
// EncoderConfig.CompressionLevel selects the default level instead.
const CompressionLevelFastest = -1

// DefaultCompressionLevel is used when EncoderConfig.CompressionLevel is
// zero.
const DefaultCompressionLevel = 5

// EncoderConfig configures a stream or file encoder.
type EncoderConfig struct {
	// Channels is the number of interleaved channels, 1 to 8. Required.
	Channels int

	// BitsPerSample is the sample bit depth: 16 or 32. Zero selects 16.
	// Other depths are rejected with an InitError.
	BitsPerSample int

	// SampleRate in Hz. Required.
	SampleRate int

	// CompressionLevel is 0 (fastest) to 8 (smallest). Zero selects
	// DefaultCompressionLevel; use CompressionLevelFastest for level 0.
	CompressionLevel int

	// BlockSize is the samples-per-channel block size. Zero lets the
	// engine choose.
	BlockSize int

	// DisableStreamableSubset lifts the streamable-subset restrictions
	// on block size and other parameters. Subset streams are produced by
	// default.
	DisableStreamableSubset bool

	// Verify makes the engine decode its own output in parallel and fail
	// the encode on any mismatch.
	Verify bool

	// LimitMinBitrate pads otherwise near-empty frames so the stream
	// bitrate never collapses to zero. Passed through to the engine;
	// engines without the tuning knob ignore it.
	LimitMinBitrate bool

	// TotalSamplesEstimate seeds the stream header's sample count for
	// unseekable outputs, where it cannot be backpatched on finish.
	TotalSamplesEstimate uint64
}

func (c *EncoderConfig) normalize() error {
	if c.Channels < 1 || c.Channels > 8 {
		return &InitError{Reason: fmt.Sprintf("invalid channel count %d", c.Channels)}
	}
	if c.BitsPerSample == 0 {
		c.BitsPerSample = 16
	}
	if c.BitsPerSample != 16 && c.BitsPerSample != 32 {
		return &InitError{Reason: fmt.Sprintf("unsupported bits per sample %d (use 16 or 32)", c.BitsPerSample)}
	}
	if c.SampleRate < 1 {
		return &InitError{Reason: fmt.Sprintf("invalid sample rate %d", c.SampleRate)}
	}
	switch {
	case c.CompressionLevel == 0:
		c.CompressionLevel = DefaultCompressionLevel
	case c.CompressionLevel == CompressionLevelFastest:
		c.CompressionLevel = 0
	case c.CompressionLevel < 0 || c.CompressionLevel > 8:
		return &InitError{Reason: fmt.Sprintf("invalid compression level %d", c.CompressionLevel)}
	}
	if c.BlockSize < 0 || c.BlockSize > 65535 {
		return &InitError{Reason: fmt.Sprintf("invalid block size %d", c.BlockSize)}
	}
	return nil
}

// StreamEncoder pushes interleaved PCM samples through the codec engine
// and writes the resulting FLAC stream to an io.Writer. If the writer
// also implements io.WriteSeeker the stream header is backpatched on
// Finish with the final sample count and MD5 signature.
//
// Not safe for concurrent use.
type StreamEncoder struct {
	w        io.Writer
	ws       io.WriteSeeker // non-nil when w is seekable
	channels int
	enc      engine.Encoder
	state    State
	ioErr    error
	info     StreamInfo
	hasInfo  bool
}

// NewStreamEncoder creates a stream encoder writing to w. The stream
// header is written before it returns.
func NewStreamEncoder(w io.Writer, cfg EncoderConfig) (*StreamEncoder, error) {
	return newStreamEncoder(engine.Default(), w, cfg)
}

func newStreamEncoder(eng engine.Engine, w io.Writer, cfg EncoderConfig) (*StreamEncoder, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	e := &StreamEncoder{w: w, channels: cfg.Channels, state: StateReady}
	e.ws, _ = w.(io.WriteSeeker)

	cb := engine.EncoderCallbacks{
		Write: e.onWrite,
		Metadata: func(info engine.StreamInfo) {
			e.info = streamInfoFromEngine(info)
			e.hasInfo = true
		},
	}
	if e.ws != nil {
		cb.Seek = e.onSeek
		cb.Tell = e.onTell
	}

	enc, err := eng.NewEncoder(engine.EncoderConfig{
		Channels:             cfg.Channels,
		BitsPerSample:        cfg.BitsPerSample,
		SampleRate:           cfg.SampleRate,
		CompressionLevel:     cfg.CompressionLevel,
		BlockSize:            cfg.BlockSize,
		StreamableSubset:     !cfg.DisableStreamableSubset,
		Verify:               cfg.Verify,
		LimitMinBitrate:      cfg.LimitMinBitrate,
		TotalSamplesEstimate: cfg.TotalSamplesEstimate,
	}, cb)
	if err != nil {
		if e.ioErr != nil {
			return nil, &IOCallbackError{Op: "write", Err: e.ioErr}
		}
		return nil, &InitError{Reason: err.Error()}
	}
	e.enc = enc
	return e, nil
}

func (e *StreamEncoder) onWrite(p []byte, samples int, frame uint32) engine.WriteStatus {
	if _, err := e.w.Write(p); err != nil {
		e.ioErr = err
		return engine.WriteAbort
	}
	return engine.WriteContinue
}

func (e *StreamEncoder) onSeek(offset uint64) engine.SeekStatus {
	if _, err := e.ws.Seek(int64(offset), io.SeekStart); err != nil {
		e.ioErr = err
		return engine.SeekFailed
	}
	return engine.SeekOK
}

func (e *StreamEncoder) onTell() (uint64, engine.TellStatus) {
	pos, err := e.ws.Seek(0, io.SeekCurrent)
	if err != nil {
		e.ioErr = err
		return 0, engine.TellFailed
	}
	return uint64(pos), engine.TellOK
}

// State reports the encoder lifecycle state.
func (e *StreamEncoder) State() State { return e.state }

// Process encodes interleaved samples. len(samples) must be a multiple
// of the channel count. Encoded bytes are written to the underlying
// writer before Process returns. The encoder does not retain samples.
func (e *StreamEncoder) Process(samples []int32) error {
	switch e.state {
	case StateFinished:
		return &ProcessError{Reason: "encoder already finished"}
	case StateError:
		return &ProcessError{Reason: "encoder in error state"}
	}
	if len(samples)%e.channels != 0 {
		return &ProcessError{Reason: fmt.Sprintf(
			"sample count %d is not a multiple of %d channels", len(samples), e.channels)}
	}
	n := len(samples) / e.channels
	if n == 0 {
		e.state = StateProcessing
		return nil
	}
	if !e.enc.Process(samples, n) {
		e.state = StateError
		if e.ioErr != nil {
			return &IOCallbackError{Op: "write", Err: e.ioErr}
		}
		return &ProcessError{Reason: e.enc.StateString()}
	}
	e.state = StateProcessing
	return nil
}

// Finish flushes buffered samples, finalizes the stream and releases the
// engine handle. When the writer is seekable the header is backpatched
// with the final sample count. Idempotent: later calls return nil.
func (e *StreamEncoder) Finish() error {
	if e.state == StateFinished {
		return nil
	}
	if e.state == StateError {
		// The failure was already reported; just release the handle.
		e.enc.Close()
		e.state = StateFinished
		return nil
	}
	ok := e.enc.Finish()
	e.enc.Close()
	e.state = StateFinished
	if !ok {
		if e.ioErr != nil {
			return &IOCallbackError{Op: "write", Err: e.ioErr}
		}
		return &ProcessError{Reason: "finish failed"}
	}
	return nil
}

// Close is an alias for Finish.
func (e *StreamEncoder) Close() error { return e.Finish() }

// Info returns the final stream header as reported by the engine on
// Finish, and whether one was reported.
func (e *StreamEncoder) Info() (StreamInfo, bool) { return e.info, e.hasInfo }
