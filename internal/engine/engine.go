// ABOUTME: Codec engine boundary definitions
// ABOUTME: Callback capability tables, status enums and the Engine provider interface
package engine

// The codec engine is driven entirely through callbacks: the caller hands
// the engine a table of closures at construction time and the engine pulls
// compressed input and pushes encoded/decoded output through them while a
// Process call is in flight. Closures capture the owning instance's state;
// they never own it.

// ReadStatus is returned by the decoder read callback.
type ReadStatus int

const (
	ReadContinue ReadStatus = iota
	ReadEOF
	ReadAbort
)

// WriteStatus is returned by write callbacks. Anything other than
// WriteContinue aborts the in-flight process call.
type WriteStatus int

const (
	WriteContinue WriteStatus = iota
	WriteAbort
)

// SeekStatus is returned by seek callbacks. SeekUnsupported tells the
// engine the stream is not seekable and it should degrade gracefully.
type SeekStatus int

const (
	SeekOK SeekStatus = iota
	SeekFailed
	SeekUnsupported
)

// TellStatus is returned by tell callbacks.
type TellStatus int

const (
	TellOK TellStatus = iota
	TellFailed
	TellUnsupported
)

// LengthStatus is returned by the decoder length callback.
type LengthStatus int

const (
	LengthOK LengthStatus = iota
	LengthFailed
	LengthUnsupported
)

// ErrorKind identifies a decoder-side stream fault reported through the
// error callback. Values match the native engine's error status codes.
type ErrorKind int

const (
	ErrorLostSync ErrorKind = iota
	ErrorBadHeader
	ErrorCRCMismatch
	ErrorUnparseable
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorLostSync:
		return "lost sync"
	case ErrorBadHeader:
		return "bad frame header"
	case ErrorCRCMismatch:
		return "frame CRC mismatch"
	case ErrorUnparseable:
		return "unparseable stream"
	}
	return "unknown error"
}

// DecoderState mirrors the native engine's decoder state machine. Values
// match the native enumeration.
type DecoderState int

const (
	StateSearchMetadata DecoderState = iota
	StateReadMetadata
	StateSearchFrameSync
	StateReadFrame
	StateEndOfStream
	StateOggError
	StateSeekError
	StateAborted
	StateMemoryError
	StateUninitialized
)

func (s DecoderState) String() string {
	switch s {
	case StateSearchMetadata:
		return "searching for metadata"
	case StateReadMetadata:
		return "reading metadata"
	case StateSearchFrameSync:
		return "searching for frame sync"
	case StateReadFrame:
		return "reading frame"
	case StateEndOfStream:
		return "end of stream"
	case StateOggError:
		return "ogg error"
	case StateSeekError:
		return "seek error"
	case StateAborted:
		return "aborted"
	case StateMemoryError:
		return "memory allocation error"
	case StateUninitialized:
		return "uninitialized"
	}
	return "unknown state"
}

// StreamInfo describes the stream as reported by the engine's metadata
// callback (and, for encoders, the backpatched header on finish).
type StreamInfo struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
	BlockSizeMin  int
	BlockSizeMax  int
	TotalSamples  uint64
	MD5           [16]byte
}

// Block is one decoded block of interleaved PCM samples. The receiver owns
// Samples; the engine does not retain or reuse it after the callback
// returns.
type Block struct {
	SampleNumber  uint64
	SampleRate    int
	Channels      int
	BitsPerSample int
	Samples       []int32
}

// EncoderConfig carries the numeric configuration handed to the engine at
// encoder construction. LimitMinBitrate is an opaque passthrough tuning
// flag; backends that cannot express it ignore it.
type EncoderConfig struct {
	Channels             int
	BitsPerSample        int
	SampleRate           int
	CompressionLevel     int
	BlockSize            int
	StreamableSubset     bool
	Verify               bool
	LimitMinBitrate      bool
	TotalSamplesEstimate uint64
}

// DecoderConfig carries decoder construction options.
type DecoderConfig struct {
	// MD5Check asks the engine to verify the decoded output against the
	// MD5 signature in the stream header, when one is present.
	MD5Check bool
}

// EncoderCallbacks is the capability table an encoder drives. Write is
// required. Seek and Tell are optional as a pair: when either is nil the
// output stream is treated as unseekable and header backpatching is
// skipped. Metadata, if set, receives the final stream header on finish.
type EncoderCallbacks struct {
	Write    func(p []byte, samples int, frame uint32) WriteStatus
	Seek     func(offset uint64) SeekStatus
	Tell     func() (uint64, TellStatus)
	Metadata func(info StreamInfo)
}

// DecoderCallbacks is the capability table a decoder drives. Read and
// Write are required. Seek, Tell, Length and EOF are optional as a group:
// when absent the input stream is unseekable and seeking is rejected.
type DecoderCallbacks struct {
	Read     func(p []byte) (int, ReadStatus)
	Seek     func(offset uint64) SeekStatus
	Tell     func() (uint64, TellStatus)
	Length   func() (uint64, LengthStatus)
	EOF      func() bool
	Write    func(b Block) WriteStatus
	Metadata func(info StreamInfo)
	Error    func(kind ErrorKind)
}

// Encoder is a live engine encoder handle. It is exclusively owned by one
// wrapper and is not safe for concurrent use. Construction may already
// fire Write callbacks (the stream header).
type Encoder interface {
	// Process feeds n interleaved samples per channel. Write callbacks
	// fire synchronously before it returns. Returns false on engine
	// failure; StateString then describes the fault.
	Process(samples []int32, n int) bool

	// Finish flushes buffered samples and backpatches the stream header
	// when the output is seekable. Returns false on failure.
	Finish() bool

	// StateString returns a human readable description of the engine
	// state, for error reporting.
	StateString() string

	// Close releases the native handle. Idempotent. No callbacks fire
	// after Close returns.
	Close()
}

// Decoder is a live engine decoder handle. Same ownership rules as
// Encoder.
type Decoder interface {
	// ProcessSingle decodes one unit: a metadata block or one audio
	// frame. Returns false on fatal engine failure. At end of stream it
	// returns true with State reporting StateEndOfStream.
	ProcessSingle() bool

	// Seek positions the stream at the frame containing the given sample.
	// The write callback may fire during the seek with that frame.
	// Returns false if the stream is unseekable or the offset cannot be
	// reached.
	Seek(sample uint64) bool

	// Flush resynchronizes after a seek or sync error so the instance
	// stays usable.
	Flush() bool

	State() DecoderState
	StateString() string

	// Finish ends decoding. Returns false if MD5 verification was
	// requested and the decoded output did not match the stream header.
	Finish() bool

	// Close releases the native handle. Idempotent. No callbacks fire
	// after Close returns.
	Close()
}

// Engine creates codec handles. Implementations: the native libFLAC
// binding and the pure-Go fallback.
type Engine interface {
	Name() string
	NewEncoder(cfg EncoderConfig, cb EncoderCallbacks) (Encoder, error)
	NewDecoder(cfg DecoderConfig, cb DecoderCallbacks) (Decoder, error)
}
