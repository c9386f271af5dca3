//go:build linux || darwin

// ABOUTME: Native stream decoder handle for the libFLAC backend
// ABOUTME: Read/seek/write/error trampolines and frame header parsing
package engine

import (
	"errors"
	"unsafe"

	"github.com/ebitengine/purego"
)

// Native status values returned from decoder callbacks.
const (
	flacDecReadContinue = 0
	flacDecReadEOF      = 1
	flacDecReadAbort    = 2

	flacDecSeekOK          = 0
	flacDecSeekFailed      = 1
	flacDecSeekUnsupported = 2

	flacDecTellOK          = 0
	flacDecTellFailed      = 1
	flacDecTellUnsupported = 2

	flacDecLengthOK          = 0
	flacDecLengthFailed      = 1
	flacDecLengthUnsupported = 2

	flacDecWriteContinue = 0
	flacDecWriteAbort    = 1
)

var (
	decReadTramp     uintptr
	decSeekTramp     uintptr
	decTellTramp     uintptr
	decLengthTramp   uintptr
	decEOFTramp      uintptr
	decWriteTramp    uintptr
	decMetadataTramp uintptr
	decErrorTramp    uintptr
)

func initDecoderTrampolines() {
	decReadTramp = purego.NewCallback(func(dec, buffer, bytesPtr, client uintptr) uintptr {
		d := lookupDecoder(client)
		if d == nil {
			return flacDecReadAbort
		}
		want := *(*uintptr)(unsafe.Pointer(bytesPtr))
		if want == 0 {
			return flacDecReadAbort
		}
		p := unsafe.Slice((*byte)(unsafe.Pointer(buffer)), int(want))
		n, st := d.cb.Read(p)
		*(*uintptr)(unsafe.Pointer(bytesPtr)) = uintptr(n)
		switch st {
		case ReadContinue:
			return flacDecReadContinue
		case ReadEOF:
			return flacDecReadEOF
		}
		return flacDecReadAbort
	})
	decSeekTramp = purego.NewCallback(func(dec uintptr, offset uint64, client uintptr) uintptr {
		d := lookupDecoder(client)
		if d == nil || d.cb.Seek == nil {
			return flacDecSeekUnsupported
		}
		switch d.cb.Seek(offset) {
		case SeekOK:
			return flacDecSeekOK
		case SeekUnsupported:
			return flacDecSeekUnsupported
		}
		return flacDecSeekFailed
	})
	decTellTramp = purego.NewCallback(func(dec, offsetPtr, client uintptr) uintptr {
		d := lookupDecoder(client)
		if d == nil || d.cb.Tell == nil {
			return flacDecTellUnsupported
		}
		offset, st := d.cb.Tell()
		switch st {
		case TellOK:
			*(*uint64)(unsafe.Pointer(offsetPtr)) = offset
			return flacDecTellOK
		case TellUnsupported:
			return flacDecTellUnsupported
		}
		return flacDecTellFailed
	})
	decLengthTramp = purego.NewCallback(func(dec, lengthPtr, client uintptr) uintptr {
		d := lookupDecoder(client)
		if d == nil || d.cb.Length == nil {
			return flacDecLengthUnsupported
		}
		length, st := d.cb.Length()
		switch st {
		case LengthOK:
			*(*uint64)(unsafe.Pointer(lengthPtr)) = length
			return flacDecLengthOK
		case LengthUnsupported:
			return flacDecLengthUnsupported
		}
		return flacDecLengthFailed
	})
	decEOFTramp = purego.NewCallback(func(dec, client uintptr) uintptr {
		d := lookupDecoder(client)
		if d == nil || d.cb.EOF == nil || !d.cb.EOF() {
			return 0
		}
		return 1
	})
	decWriteTramp = purego.NewCallback(func(dec, framePtr, bufferPtr, client uintptr) uintptr {
		d := lookupDecoder(client)
		if d == nil {
			return flacDecWriteAbort
		}
		if d.cb.Write(d.parseFrame(framePtr, bufferPtr)) != WriteContinue {
			return flacDecWriteAbort
		}
		return flacDecWriteContinue
	})
	decMetadataTramp = purego.NewCallback(func(dec, metadata, client uintptr) uintptr {
		d := lookupDecoder(client)
		if d == nil {
			return 0
		}
		if info, ok := parseStreamInfo(metadata); ok {
			d.info = info
			d.hasInfo = true
			if d.cb.Metadata != nil {
				d.cb.Metadata(info)
			}
		}
		return 0
	})
	decErrorTramp = purego.NewCallback(func(dec uintptr, status uint32, client uintptr) uintptr {
		d := lookupDecoder(client)
		if d != nil && d.cb.Error != nil {
			d.cb.Error(ErrorKind(status))
		}
		return 0
	})
}

// parseFrame converts a native FLAC__Frame and its per-channel sample
// pointers into an interleaved block. Header offsets follow the native
// struct layout on 64-bit platforms. The sample data is copied: the
// native buffers are only valid for the duration of the callback.
func (d *libflacDecoder) parseFrame(framePtr, bufferPtr uintptr) Block {
	const frameNumberType = 0 // number holds a frame index, not a sample index

	blockSize := int(*(*uint32)(unsafe.Pointer(framePtr)))
	sampleRate := int(*(*uint32)(unsafe.Pointer(framePtr + 4)))
	channels := int(*(*uint32)(unsafe.Pointer(framePtr + 8)))
	bps := int(*(*uint32)(unsafe.Pointer(framePtr + 16)))
	numberType := *(*uint32)(unsafe.Pointer(framePtr + 20))

	var sampleNumber uint64
	if numberType == frameNumberType {
		frameNumber := uint64(*(*uint32)(unsafe.Pointer(framePtr + 24)))
		fixed := uint64(blockSize)
		if d.hasInfo && d.info.BlockSizeMax > 0 {
			fixed = uint64(d.info.BlockSizeMax)
		}
		sampleNumber = frameNumber * fixed
	} else {
		sampleNumber = *(*uint64)(unsafe.Pointer(framePtr + 24))
	}

	samples := make([]int32, blockSize*channels)
	ptrSize := unsafe.Sizeof(uintptr(0))
	for ch := 0; ch < channels; ch++ {
		chPtr := *(*uintptr)(unsafe.Pointer(bufferPtr + uintptr(ch)*ptrSize))
		chSamples := unsafe.Slice((*int32)(unsafe.Pointer(chPtr)), blockSize)
		for i, s := range chSamples {
			samples[i*channels+ch] = s
		}
	}
	return Block{
		SampleNumber:  sampleNumber,
		SampleRate:    sampleRate,
		Channels:      channels,
		BitsPerSample: bps,
		Samples:       samples,
	}
}

type libflacDecoder struct {
	h       uintptr
	client  uintptr
	cb      DecoderCallbacks
	info    StreamInfo
	hasInfo bool
	closed  bool
}

func (libflacEngine) NewDecoder(cfg DecoderConfig, cb DecoderCallbacks) (Decoder, error) {
	if cb.Read == nil || cb.Write == nil {
		return nil, errors.New("read and write callbacks are required")
	}
	h := libflac.decoderNew()
	if h == 0 {
		return nil, errors.New("failed to allocate decoder")
	}
	d := &libflacDecoder{h: h, cb: cb}
	if cfg.MD5Check {
		libflac.decoderSetMD5Checking(h, true)
	}
	d.client = registerDecoder(d)
	rc := libflac.decoderInitStream(h,
		decReadTramp, decSeekTramp, decTellTramp, decLengthTramp, decEOFTramp,
		decWriteTramp, decMetadataTramp, decErrorTramp, d.client)
	if rc != 0 {
		return nil, decoderInitFailure(d)
	}
	return d, nil
}

// decoderInitFailure builds the init error and releases the handle. The
// resolved state string must be read before Close frees the handle.
func decoderInitFailure(d *libflacDecoder) error {
	reason := goString(libflac.decoderResolvedStateString(d.h))
	d.Close()
	return errors.New("decoder init failed: " + reason)
}

func (d *libflacDecoder) ProcessSingle() bool {
	if d.closed {
		return false
	}
	return libflac.decoderProcessSingle(d.h)
}

func (d *libflacDecoder) Seek(sample uint64) bool {
	if d.closed {
		return false
	}
	return libflac.decoderSeekAbsolute(d.h, sample)
}

func (d *libflacDecoder) Flush() bool {
	if d.closed {
		return false
	}
	return libflac.decoderFlush(d.h)
}

func (d *libflacDecoder) State() DecoderState {
	if d.closed {
		return StateUninitialized
	}
	return DecoderState(libflac.decoderGetState(d.h))
}

func (d *libflacDecoder) StateString() string {
	if d.closed {
		return "closed"
	}
	return goString(libflac.decoderResolvedStateString(d.h))
}

func (d *libflacDecoder) Finish() bool {
	if d.closed {
		return true
	}
	return libflac.decoderFinish(d.h)
}

func (d *libflacDecoder) Close() {
	if d.closed {
		return
	}
	d.closed = true
	unregister(d.client)
	libflac.decoderDelete(d.h)
	d.h = 0
}
