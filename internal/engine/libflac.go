//go:build linux || darwin

// ABOUTME: Native libFLAC engine backend loaded with purego
// ABOUTME: Shared-library resolution, symbol table and handle registry
package engine

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

var (
	libflacOnce sync.Once
	libflacErr  error
	libflac     libflacSymbols
)

// libflacSymbols is the function-pointer table registered against the
// loaded shared library.
type libflacSymbols struct {
	// stream encoder
	encoderNew                     func() uintptr
	encoderDelete                  func(enc uintptr)
	encoderSetVerify               func(enc uintptr, value bool) bool
	encoderSetStreamableSubset     func(enc uintptr, value bool) bool
	encoderSetChannels             func(enc uintptr, value uint32) bool
	encoderSetBitsPerSample        func(enc uintptr, value uint32) bool
	encoderSetSampleRate           func(enc uintptr, value uint32) bool
	encoderSetCompressionLevel     func(enc uintptr, value uint32) bool
	encoderSetBlocksize            func(enc uintptr, value uint32) bool
	encoderSetTotalSamplesEstimate func(enc uintptr, value uint64) bool
	encoderSetLimitMinBitrate      func(enc uintptr, value bool) bool // libFLAC >= 1.4, may be nil
	encoderInitStream              func(enc, write, seek, tell, metadata, client uintptr) int32
	encoderProcessInterleaved      func(enc uintptr, buffer *int32, samples uint32) bool
	encoderFinish                  func(enc uintptr) bool
	encoderGetState                func(enc uintptr) int32
	encoderResolvedStateString     func(enc uintptr) uintptr

	// stream decoder
	decoderNew                 func() uintptr
	decoderDelete              func(dec uintptr)
	decoderSetMD5Checking      func(dec uintptr, value bool) bool
	decoderInitStream          func(dec, read, seek, tell, length, eof, write, metadata, errCb, client uintptr) int32
	decoderProcessSingle       func(dec uintptr) bool
	decoderProcessUntilMeta    func(dec uintptr) bool
	decoderSeekAbsolute        func(dec uintptr, sample uint64) bool
	decoderFlush               func(dec uintptr) bool
	decoderGetState            func(dec uintptr) int32
	decoderResolvedStateString func(dec uintptr) uintptr
	decoderFinish              func(dec uintptr) bool
}

// candidate shared library names, most specific first. The environment
// variable overrides everything, same as the engine wrappers this binding
// is modeled on.
func libflacCandidates() []string {
	if p := os.Getenv("FLACSTREAM_LIBFLAC"); p != "" {
		return []string{p}
	}
	if runtime.GOOS == "darwin" {
		return []string{
			"libFLAC.dylib",
			"/opt/homebrew/lib/libFLAC.dylib",
			"/usr/local/lib/libFLAC.dylib",
		}
	}
	return []string{
		"libFLAC.so.14",
		"libFLAC.so.12",
		"libFLAC.so.8",
		"libFLAC.so",
	}
}

func loadLibFLAC() error {
	var handle uintptr
	var lastErr error
	for _, name := range libflacCandidates() {
		h, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			handle = h
			break
		}
		lastErr = err
	}
	if handle == 0 {
		if lastErr == nil {
			lastErr = errors.New("no candidate library names")
		}
		return fmt.Errorf("libFLAC not found: %w", lastErr)
	}

	purego.RegisterLibFunc(&libflac.encoderNew, handle, "FLAC__stream_encoder_new")
	purego.RegisterLibFunc(&libflac.encoderDelete, handle, "FLAC__stream_encoder_delete")
	purego.RegisterLibFunc(&libflac.encoderSetVerify, handle, "FLAC__stream_encoder_set_verify")
	purego.RegisterLibFunc(&libflac.encoderSetStreamableSubset, handle, "FLAC__stream_encoder_set_streamable_subset")
	purego.RegisterLibFunc(&libflac.encoderSetChannels, handle, "FLAC__stream_encoder_set_channels")
	purego.RegisterLibFunc(&libflac.encoderSetBitsPerSample, handle, "FLAC__stream_encoder_set_bits_per_sample")
	purego.RegisterLibFunc(&libflac.encoderSetSampleRate, handle, "FLAC__stream_encoder_set_sample_rate")
	purego.RegisterLibFunc(&libflac.encoderSetCompressionLevel, handle, "FLAC__stream_encoder_set_compression_level")
	purego.RegisterLibFunc(&libflac.encoderSetBlocksize, handle, "FLAC__stream_encoder_set_blocksize")
	purego.RegisterLibFunc(&libflac.encoderSetTotalSamplesEstimate, handle, "FLAC__stream_encoder_set_total_samples_estimate")
	purego.RegisterLibFunc(&libflac.encoderInitStream, handle, "FLAC__stream_encoder_init_stream")
	purego.RegisterLibFunc(&libflac.encoderProcessInterleaved, handle, "FLAC__stream_encoder_process_interleaved")
	purego.RegisterLibFunc(&libflac.encoderFinish, handle, "FLAC__stream_encoder_finish")
	purego.RegisterLibFunc(&libflac.encoderGetState, handle, "FLAC__stream_encoder_get_state")
	purego.RegisterLibFunc(&libflac.encoderResolvedStateString, handle, "FLAC__stream_encoder_get_resolved_state_string")

	// Optional: only present in libFLAC >= 1.4. Probed rather than
	// registered so older libraries still load.
	if _, err := purego.Dlsym(handle, "FLAC__stream_encoder_set_limit_min_bitrate"); err == nil {
		purego.RegisterLibFunc(&libflac.encoderSetLimitMinBitrate, handle, "FLAC__stream_encoder_set_limit_min_bitrate")
	}

	purego.RegisterLibFunc(&libflac.decoderNew, handle, "FLAC__stream_decoder_new")
	purego.RegisterLibFunc(&libflac.decoderDelete, handle, "FLAC__stream_decoder_delete")
	purego.RegisterLibFunc(&libflac.decoderSetMD5Checking, handle, "FLAC__stream_decoder_set_md5_checking")
	purego.RegisterLibFunc(&libflac.decoderInitStream, handle, "FLAC__stream_decoder_init_stream")
	purego.RegisterLibFunc(&libflac.decoderProcessSingle, handle, "FLAC__stream_decoder_process_single")
	purego.RegisterLibFunc(&libflac.decoderProcessUntilMeta, handle, "FLAC__stream_decoder_process_until_end_of_metadata")
	purego.RegisterLibFunc(&libflac.decoderSeekAbsolute, handle, "FLAC__stream_decoder_seek_absolute")
	purego.RegisterLibFunc(&libflac.decoderFlush, handle, "FLAC__stream_decoder_flush")
	purego.RegisterLibFunc(&libflac.decoderGetState, handle, "FLAC__stream_decoder_get_state")
	purego.RegisterLibFunc(&libflac.decoderResolvedStateString, handle, "FLAC__stream_decoder_get_resolved_state_string")
	purego.RegisterLibFunc(&libflac.decoderFinish, handle, "FLAC__stream_decoder_finish")

	initEncoderTrampolines()
	initDecoderTrampolines()
	return nil
}

type libflacEngine struct{}

// NewLibFLAC loads the native libFLAC shared library and returns an engine
// backed by it. Loading happens once per process; subsequent calls return
// the cached result.
func NewLibFLAC() (Engine, error) {
	libflacOnce.Do(func() {
		libflacErr = loadLibFLAC()
	})
	if libflacErr != nil {
		return nil, libflacErr
	}
	return libflacEngine{}, nil
}

func (libflacEngine) Name() string { return "libflac" }

// Handle registry: native callbacks receive an opaque client token which
// is mapped back to the owning Go object here. Pointers to Go objects are
// never handed to the native side.
var (
	regMu  sync.RWMutex
	regSeq uintptr
	encReg = make(map[uintptr]*libflacEncoder)
	decReg = make(map[uintptr]*libflacDecoder)
)

func registerEncoder(e *libflacEncoder) uintptr {
	regMu.Lock()
	defer regMu.Unlock()
	regSeq++
	encReg[regSeq] = e
	return regSeq
}

func registerDecoder(d *libflacDecoder) uintptr {
	regMu.Lock()
	defer regMu.Unlock()
	regSeq++
	decReg[regSeq] = d
	return regSeq
}

func unregister(id uintptr) {
	regMu.Lock()
	defer regMu.Unlock()
	delete(encReg, id)
	delete(decReg, id)
}

func lookupEncoder(id uintptr) *libflacEncoder {
	regMu.RLock()
	defer regMu.RUnlock()
	return encReg[id]
}

func lookupDecoder(id uintptr) *libflacDecoder {
	regMu.RLock()
	defer regMu.RUnlock()
	return decReg[id]
}

// goString copies a NUL-terminated C string.
func goString(p uintptr) string {
	if p == 0 {
		return ""
	}
	var n int
	for *(*byte)(unsafe.Pointer(p + uintptr(n))) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
}
