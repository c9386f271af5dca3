//go:build linux || darwin

// ABOUTME: Native stream encoder handle for the libFLAC backend
// ABOUTME: Callback trampolines and encoder lifecycle over the purego binding
package engine

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Native status values returned from encoder callbacks.
const (
	flacEncWriteOK    = 0
	flacEncWriteFatal = 1

	flacEncSeekOK          = 0
	flacEncSeekFailed      = 1
	flacEncSeekUnsupported = 2

	flacEncTellOK          = 0
	flacEncTellFailed      = 1
	flacEncTellUnsupported = 2
)

// Encoder init status strings, indexed by the native init status code.
var flacEncInitStatus = []string{
	"ok",
	"encoder error",
	"unsupported container",
	"invalid callbacks",
	"invalid number of channels",
	"invalid bits per sample",
	"invalid sample rate",
	"invalid block size",
	"invalid max lpc order",
	"invalid qlp coeff precision",
	"block size too small for lpc order",
	"not streamable",
	"invalid metadata",
	"already initialized",
}

// Trampolines are created once; the client token dispatches to the owning
// encoder through the registry. purego callbacks are permanent, so a
// per-instance callback would leak.
var (
	encWriteTramp    uintptr
	encSeekTramp     uintptr
	encTellTramp     uintptr
	encMetadataTramp uintptr
)

func initEncoderTrampolines() {
	encWriteTramp = purego.NewCallback(func(enc, buffer uintptr, n uintptr, samples uint32, frame uint32, client uintptr) uintptr {
		e := lookupEncoder(client)
		if e == nil {
			return flacEncWriteFatal
		}
		var p []byte
		if n > 0 {
			p = unsafe.Slice((*byte)(unsafe.Pointer(buffer)), int(n))
		}
		if e.cb.Write(p, int(samples), frame) != WriteContinue {
			return flacEncWriteFatal
		}
		return flacEncWriteOK
	})
	encSeekTramp = purego.NewCallback(func(enc uintptr, offset uint64, client uintptr) uintptr {
		e := lookupEncoder(client)
		if e == nil || e.cb.Seek == nil {
			return flacEncSeekUnsupported
		}
		switch e.cb.Seek(offset) {
		case SeekOK:
			return flacEncSeekOK
		case SeekUnsupported:
			return flacEncSeekUnsupported
		}
		return flacEncSeekFailed
	})
	encTellTramp = purego.NewCallback(func(enc uintptr, offsetPtr uintptr, client uintptr) uintptr {
		e := lookupEncoder(client)
		if e == nil || e.cb.Tell == nil {
			return flacEncTellUnsupported
		}
		offset, st := e.cb.Tell()
		switch st {
		case TellOK:
			*(*uint64)(unsafe.Pointer(offsetPtr)) = offset
			return flacEncTellOK
		case TellUnsupported:
			return flacEncTellUnsupported
		}
		return flacEncTellFailed
	})
	encMetadataTramp = purego.NewCallback(func(enc, metadata, client uintptr) uintptr {
		e := lookupEncoder(client)
		if e == nil || e.cb.Metadata == nil {
			return 0
		}
		if info, ok := parseStreamInfo(metadata); ok {
			e.cb.Metadata(info)
		}
		return 0
	})
}

// parseStreamInfo reads a native FLAC__StreamMetadata STREAMINFO block.
// Field offsets follow the native struct layout on 64-bit platforms: the
// header (type, is_last, length) is padded to 16 bytes before the union.
func parseStreamInfo(metadata uintptr) (StreamInfo, bool) {
	const streamInfoType = 0
	if metadata == 0 || *(*uint32)(unsafe.Pointer(metadata)) != streamInfoType {
		return StreamInfo{}, false
	}
	body := metadata + 16
	info := StreamInfo{
		BlockSizeMin:  int(*(*uint32)(unsafe.Pointer(body))),
		BlockSizeMax:  int(*(*uint32)(unsafe.Pointer(body + 4))),
		SampleRate:    int(*(*uint32)(unsafe.Pointer(body + 16))),
		Channels:      int(*(*uint32)(unsafe.Pointer(body + 20))),
		BitsPerSample: int(*(*uint32)(unsafe.Pointer(body + 24))),
		TotalSamples:  *(*uint64)(unsafe.Pointer(body + 32)),
	}
	copy(info.MD5[:], unsafe.Slice((*byte)(unsafe.Pointer(body+40)), 16))
	return info, true
}

type libflacEncoder struct {
	h      uintptr
	client uintptr
	cb     EncoderCallbacks
	closed bool
}

func (libflacEngine) NewEncoder(cfg EncoderConfig, cb EncoderCallbacks) (Encoder, error) {
	if cb.Write == nil {
		return nil, errors.New("write callback is required")
	}
	h := libflac.encoderNew()
	if h == 0 {
		return nil, errors.New("failed to allocate encoder")
	}
	e := &libflacEncoder{h: h, cb: cb}

	libflac.encoderSetVerify(h, cfg.Verify)
	libflac.encoderSetStreamableSubset(h, cfg.StreamableSubset)
	libflac.encoderSetChannels(h, uint32(cfg.Channels))
	libflac.encoderSetBitsPerSample(h, uint32(cfg.BitsPerSample))
	libflac.encoderSetSampleRate(h, uint32(cfg.SampleRate))
	libflac.encoderSetCompressionLevel(h, uint32(cfg.CompressionLevel))
	libflac.encoderSetBlocksize(h, uint32(cfg.BlockSize))
	if cfg.TotalSamplesEstimate > 0 {
		libflac.encoderSetTotalSamplesEstimate(h, cfg.TotalSamplesEstimate)
	}
	if cfg.LimitMinBitrate && libflac.encoderSetLimitMinBitrate != nil {
		libflac.encoderSetLimitMinBitrate(h, true)
	}

	// Registered before init: the header is written through the write
	// callback during init_stream.
	e.client = registerEncoder(e)
	rc := libflac.encoderInitStream(h, encWriteTramp, encSeekTramp, encTellTramp, encMetadataTramp, e.client)
	if rc != 0 {
		reason := "unknown init failure"
		if int(rc) < len(flacEncInitStatus) {
			reason = flacEncInitStatus[rc]
		}
		if rc == 1 {
			reason = goString(libflac.encoderResolvedStateString(h))
		}
		e.Close()
		return nil, fmt.Errorf("encoder init failed: %s", reason)
	}
	return e, nil
}

func (e *libflacEncoder) Process(samples []int32, n int) bool {
	if e.closed || n == 0 {
		return !e.closed
	}
	return libflac.encoderProcessInterleaved(e.h, &samples[0], uint32(n))
}

func (e *libflacEncoder) Finish() bool {
	if e.closed {
		return false
	}
	return libflac.encoderFinish(e.h)
}

func (e *libflacEncoder) StateString() string {
	if e.closed {
		return "closed"
	}
	return goString(libflac.encoderResolvedStateString(e.h))
}

func (e *libflacEncoder) Close() {
	if e.closed {
		return
	}
	e.closed = true
	unregister(e.client)
	libflac.encoderDelete(e.h)
	e.h = 0
}
