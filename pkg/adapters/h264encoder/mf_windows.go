//go:build windows

package h264encoder

/*
#cgo CFLAGS: -DCOBJMACROS
#cgo LDFLAGS: -lmfplat -lmfuuid -lole32 -lmf -lstrmiids

#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#include <windows.h>
#include <mfapi.h>
#include <mfidl.h>
#include <mferror.h>
#include <mftransform.h>
#include <codecapi.h>
#include <strmif.h>

static HRESULT setSize(IMFMediaType *t, UINT32 w, UINT32 h) {
    return IMFMediaType_SetUINT64(t, &MF_MT_FRAME_SIZE, ((UINT64)w << 32) | h);
}

static HRESULT setRatio(IMFMediaType *t, REFGUID key, UINT32 num, UINT32 den) {
    return IMFMediaType_SetUINT64(t, key, ((UINT64)num << 32) | den);
}

static HRESULT mfStartup(void) {
    HRESULT hr = CoInitializeEx(NULL, COINIT_MULTITHREADED);
    if (FAILED(hr) && hr != RPC_E_CHANGED_MODE) {
        return hr;
    }
    return MFStartup(MF_VERSION, MFSTARTUP_NOSOCKET);
}

// enumEncoders lists hardware asynchronous NV12 -> H.264 encoder MFTs.
static HRESULT enumEncoders(IMFActivate ***list, UINT32 *count) {
    MFT_REGISTER_TYPE_INFO in = { MFMediaType_Video, MFVideoFormat_NV12 };
    MFT_REGISTER_TYPE_INFO out = { MFMediaType_Video, MFVideoFormat_H264 };
    return MFTEnumEx(MFT_CATEGORY_VIDEO_ENCODER,
        MFT_ENUM_FLAG_HARDWARE | MFT_ENUM_FLAG_ASYNCMFT | MFT_ENUM_FLAG_SORTANDFILTER,
        &in, &out, list, count);
}

static IMFActivate *activateAt(IMFActivate **list, UINT32 i) {
    return list[i];
}

static void freeActivates(IMFActivate **list, UINT32 count) {
    for (UINT32 i = 0; i < count; i++) {
        IMFActivate_Release(list[i]);
    }
    CoTaskMemFree(list);
}

// friendlyName copies the MFT name as UTF-8 into buf.
static void friendlyName(IMFActivate *a, char *buf, int size) {
    WCHAR *name = NULL;
    UINT32 len = 0;
    buf[0] = 0;
    if (SUCCEEDED(IMFActivate_GetAllocatedString(a, &MFT_FRIENDLY_NAME_Attribute, &name, &len))) {
        WideCharToMultiByte(CP_UTF8, 0, name, -1, buf, size, NULL, NULL);
        CoTaskMemFree(name);
    }
}

typedef struct {
    IMFTransform *transform;
    IMFMediaEventGenerator *events;
    DWORD inputID;
    DWORD outputID;
    int providesSamples;
    DWORD outputSize;
    UINT32 width;
    UINT32 height;
} MFEncoder;

// openEncoder activates the MFT at index, unlocks async mode and sets the
// output then input types. On failure *failedOp names the step.
static HRESULT openEncoder(UINT32 index, UINT32 width, UINT32 height, UINT32 fps, UINT32 bitrate, MFEncoder **out, const char **failedOp) {
    IMFActivate **list = NULL;
    UINT32 count = 0;
    IMFAttributes *attrs = NULL;
    IMFMediaType *outType = NULL;
    IMFMediaType *inType = NULL;
    MFT_OUTPUT_STREAM_INFO info;
    HRESULT hr;

    MFEncoder *enc = (MFEncoder *)calloc(1, sizeof(MFEncoder));
    if (!enc) { *failedOp = "calloc"; return E_OUTOFMEMORY; }
    enc->width = width;
    enc->height = height;

    *failedOp = "MFTEnumEx";
    hr = enumEncoders(&list, &count);
    if (FAILED(hr)) goto fail;
    if (index >= count) { hr = E_INVALIDARG; goto fail; }

    *failedOp = "ActivateObject";
    hr = IMFActivate_ActivateObject(list[index], &IID_IMFTransform, (void **)&enc->transform);
    freeActivates(list, count);
    list = NULL;
    if (FAILED(hr)) goto fail;

    *failedOp = "GetAttributes";
    hr = IMFTransform_GetAttributes(enc->transform, &attrs);
    if (FAILED(hr)) goto fail;
    IMFAttributes_SetUINT32(attrs, &MF_TRANSFORM_ASYNC_UNLOCK, TRUE);
    IMFAttributes_SetUINT32(attrs, &MF_LOW_LATENCY, TRUE);
    IMFAttributes_Release(attrs);

    // No B-frames: output order must equal input order.
    {
        ICodecAPI *codec = NULL;
        if (SUCCEEDED(IMFTransform_QueryInterface(enc->transform, &IID_ICodecAPI, (void **)&codec))) {
            VARIANT v;
            memset(&v, 0, sizeof(v));
            v.vt = VT_UI4;
            v.ulVal = 0;
            ICodecAPI_SetValue(codec, &CODECAPI_AVEncMPVDefaultBPictureCount, &v);
            ICodecAPI_Release(codec);
        }
    }

    *failedOp = "QueryInterface(IMFMediaEventGenerator)";
    hr = IMFTransform_QueryInterface(enc->transform, &IID_IMFMediaEventGenerator, (void **)&enc->events);
    if (FAILED(hr)) goto fail;

    hr = IMFTransform_GetStreamIDs(enc->transform, 1, &enc->inputID, 1, &enc->outputID);
    if (hr == E_NOTIMPL) {
        enc->inputID = 0;
        enc->outputID = 0;
    } else if (FAILED(hr)) {
        *failedOp = "GetStreamIDs";
        goto fail;
    }

    *failedOp = "SetOutputType";
    hr = MFCreateMediaType(&outType);
    if (FAILED(hr)) goto fail;
    IMFMediaType_SetGUID(outType, &MF_MT_MAJOR_TYPE, &MFMediaType_Video);
    IMFMediaType_SetGUID(outType, &MF_MT_SUBTYPE, &MFVideoFormat_H264);
    IMFMediaType_SetUINT32(outType, &MF_MT_AVG_BITRATE, bitrate);
    setSize(outType, width, height);
    setRatio(outType, &MF_MT_FRAME_RATE, fps, 1);
    setRatio(outType, &MF_MT_PIXEL_ASPECT_RATIO, 1, 1);
    IMFMediaType_SetUINT32(outType, &MF_MT_INTERLACE_MODE, MFVideoInterlace_Progressive);
    IMFMediaType_SetUINT32(outType, &MF_MT_MPEG2_PROFILE, eAVEncH264VProfile_Main);
    hr = IMFTransform_SetOutputType(enc->transform, enc->outputID, outType, 0);
    IMFMediaType_Release(outType);
    if (FAILED(hr)) goto fail;

    *failedOp = "SetInputType";
    hr = MFCreateMediaType(&inType);
    if (FAILED(hr)) goto fail;
    IMFMediaType_SetGUID(inType, &MF_MT_MAJOR_TYPE, &MFMediaType_Video);
    IMFMediaType_SetGUID(inType, &MF_MT_SUBTYPE, &MFVideoFormat_NV12);
    setSize(inType, width, height);
    setRatio(inType, &MF_MT_FRAME_RATE, fps, 1);
    setRatio(inType, &MF_MT_PIXEL_ASPECT_RATIO, 1, 1);
    IMFMediaType_SetUINT32(inType, &MF_MT_INTERLACE_MODE, MFVideoInterlace_Progressive);
    hr = IMFTransform_SetInputType(enc->transform, enc->inputID, inType, 0);
    IMFMediaType_Release(inType);
    if (FAILED(hr)) goto fail;

    *failedOp = "GetOutputStreamInfo";
    hr = IMFTransform_GetOutputStreamInfo(enc->transform, enc->outputID, &info);
    if (FAILED(hr)) goto fail;
    enc->providesSamples = (info.dwFlags & (MFT_OUTPUT_STREAM_PROVIDES_SAMPLES | MFT_OUTPUT_STREAM_CAN_PROVIDE_SAMPLES)) != 0;
    enc->outputSize = info.cbSize ? info.cbSize : width * height * 3 / 2;

    *failedOp = "";
    *out = enc;
    return S_OK;

fail:
    if (list) freeActivates(list, count);
    if (enc->events) IMFMediaEventGenerator_Release(enc->events);
    if (enc->transform) IMFTransform_Release(enc->transform);
    free(enc);
    return hr;
}

static HRESULT sendMessage(MFEncoder *enc, MFT_MESSAGE_TYPE msg) {
    return IMFTransform_ProcessMessage(enc->transform, msg, 0);
}

// nextEvent polls the event queue. *type is 0 when no event is queued.
static HRESULT nextEvent(MFEncoder *enc, DWORD *type) {
    IMFMediaEvent *ev = NULL;
    MediaEventType met = 0;
    HRESULT status = S_OK;
    HRESULT hr = IMFMediaEventGenerator_GetEvent(enc->events, MF_EVENT_FLAG_NO_WAIT, &ev);
    *type = 0;
    if (hr == MF_E_NO_EVENTS_AVAILABLE) return S_OK;
    if (FAILED(hr)) return hr;
    IMFMediaEvent_GetType(ev, &met);
    IMFMediaEvent_GetStatus(ev, &status);
    IMFMediaEvent_Release(ev);
    *type = met;
    return status;
}

static HRESULT processInput(MFEncoder *enc, const BYTE *data, DWORD size, LONGLONG time, LONGLONG duration) {
    IMFMediaBuffer *buf = NULL;
    IMFSample *sample = NULL;
    BYTE *dst = NULL;
    HRESULT hr = MFCreateMemoryBuffer(size, &buf);
    if (FAILED(hr)) return hr;
    hr = IMFMediaBuffer_Lock(buf, &dst, NULL, NULL);
    if (FAILED(hr)) { IMFMediaBuffer_Release(buf); return hr; }
    memcpy(dst, data, size);
    IMFMediaBuffer_Unlock(buf);
    IMFMediaBuffer_SetCurrentLength(buf, size);

    hr = MFCreateSample(&sample);
    if (SUCCEEDED(hr)) hr = IMFSample_AddBuffer(sample, buf);
    IMFMediaBuffer_Release(buf);
    if (FAILED(hr)) { if (sample) IMFSample_Release(sample); return hr; }
    IMFSample_SetSampleTime(sample, time);
    IMFSample_SetSampleDuration(sample, duration);

    hr = IMFTransform_ProcessInput(enc->transform, enc->inputID, sample, 0);
    IMFSample_Release(sample);
    return hr;
}

typedef struct {
    BYTE *data;
    DWORD size;
    LONGLONG time;
    LONGLONG duration;
    UINT32 keyframe;
} MFOutput;

// renegotiate accepts the first available output type after a stream change.
static HRESULT renegotiate(MFEncoder *enc) {
    IMFMediaType *t = NULL;
    HRESULT hr = IMFTransform_GetOutputAvailableType(enc->transform, enc->outputID, 0, &t);
    if (FAILED(hr)) return hr;
    hr = IMFTransform_SetOutputType(enc->transform, enc->outputID, t, 0);
    IMFMediaType_Release(t);
    return hr;
}

// processOutput pulls one sample. out->data is malloc'd and owned by the caller.
static HRESULT processOutput(MFEncoder *enc, MFOutput *out) {
    MFT_OUTPUT_DATA_BUFFER ob;
    IMFMediaBuffer *mb = NULL;
    IMFMediaBuffer *contig = NULL;
    BYTE *p = NULL;
    DWORD len = 0;
    DWORD status = 0;
    HRESULT hr;

    memset(&ob, 0, sizeof(ob));
    memset(out, 0, sizeof(*out));
    ob.dwStreamID = enc->outputID;

    if (!enc->providesSamples) {
        hr = MFCreateSample(&ob.pSample);
        if (FAILED(hr)) return hr;
        hr = MFCreateMemoryBuffer(enc->outputSize, &mb);
        if (FAILED(hr)) { IMFSample_Release(ob.pSample); return hr; }
        IMFSample_AddBuffer(ob.pSample, mb);
        IMFMediaBuffer_Release(mb);
    }

    hr = IMFTransform_ProcessOutput(enc->transform, 0, 1, &ob, &status);
    if (ob.pEvents) IMFCollection_Release(ob.pEvents);
    if (hr == MF_E_TRANSFORM_STREAM_CHANGE) {
        if (ob.pSample) IMFSample_Release(ob.pSample);
        hr = renegotiate(enc);
        return FAILED(hr) ? hr : MF_E_TRANSFORM_NEED_MORE_INPUT;
    }
    if (FAILED(hr)) {
        if (ob.pSample) IMFSample_Release(ob.pSample);
        return hr;
    }

    hr = IMFSample_ConvertToContiguousBuffer(ob.pSample, &contig);
    if (SUCCEEDED(hr)) hr = IMFMediaBuffer_Lock(contig, &p, NULL, &len);
    if (SUCCEEDED(hr)) {
        out->data = (BYTE *)malloc(len);
        if (out->data) {
            memcpy(out->data, p, len);
            out->size = len;
        } else {
            hr = E_OUTOFMEMORY;
        }
        IMFMediaBuffer_Unlock(contig);
    }
    if (contig) IMFMediaBuffer_Release(contig);

    IMFSample_GetSampleTime(ob.pSample, &out->time);
    IMFSample_GetSampleDuration(ob.pSample, &out->duration);
    IMFSample_GetUINT32(ob.pSample, &MFSampleExtension_CleanPoint, &out->keyframe);
    IMFSample_Release(ob.pSample);
    return hr;
}

// sequenceHeader copies MF_MT_MPEG_SEQUENCE_HEADER of the current output type.
static HRESULT sequenceHeader(MFEncoder *enc, BYTE **data, UINT32 *size) {
    IMFMediaType *t = NULL;
    HRESULT hr = IMFTransform_GetOutputCurrentType(enc->transform, enc->outputID, &t);
    if (FAILED(hr)) return hr;
    hr = IMFMediaType_GetAllocatedBlob(t, &MF_MT_MPEG_SEQUENCE_HEADER, data, size);
    IMFMediaType_Release(t);
    return hr;
}

static void closeEncoder(MFEncoder *enc) {
    IMFShutdown *shutdown = NULL;
    if (!enc) return;
    IMFTransform_ProcessMessage(enc->transform, MFT_MESSAGE_NOTIFY_END_STREAMING, 0);
    if (SUCCEEDED(IMFTransform_QueryInterface(enc->transform, &IID_IMFShutdown, (void **)&shutdown))) {
        IMFShutdown_Shutdown(shutdown);
        IMFShutdown_Release(shutdown);
    }
    IMFMediaEventGenerator_Release(enc->events);
    IMFTransform_Release(enc->transform);
    free(enc);
}
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/user/deskrec/pkg/adapters/annexb"
	"github.com/user/deskrec/pkg/ports"
)

const (
	meTransformNeedInput     = 601
	meTransformHaveOutput    = 602
	meTransformDrainComplete = 603

	eventPollInterval = time.Millisecond

	hrNotAccepting   = 0xC00D36B5
	hrNeedMoreInput  = 0xC00D6D72
	defaultMFBitrate = 8_000_000
)

var (
	startupOnce sync.Once
	startupErr  error
)

func mfStartup() error {
	startupOnce.Do(func() {
		if hr := C.mfStartup(); hr < 0 {
			startupErr = &HRESULTError{Op: "MFStartup", Code: uint32(hr)}
		}
	})
	return startupErr
}

// mfDevice is one hardware H.264 encoder MFT.
type mfDevice struct {
	info     ports.EncoderInfo
	mftIndex int
	logger   ports.Logger
}

func platformDevices(logger ports.Logger) ([]ports.EncoderDevice, error) {
	if err := mfStartup(); err != nil {
		return nil, err
	}

	var list **C.IMFActivate
	var count C.UINT32
	if hr := C.enumEncoders(&list, &count); hr < 0 {
		return nil, &HRESULTError{Op: "MFTEnumEx", Code: uint32(hr)}
	}
	defer C.freeActivates(list, count)

	devices := make([]ports.EncoderDevice, 0, int(count))
	buf := (*C.char)(C.malloc(256))
	defer C.free(unsafe.Pointer(buf))
	for i := C.UINT32(0); i < count; i++ {
		C.friendlyName(C.activateAt(list, i), buf, 256)
		devices = append(devices, &mfDevice{
			info: ports.EncoderInfo{
				Name:     C.GoString(buf),
				Backend:  "mediafoundation",
				Hardware: true,
				Codec:    ports.CodecH264,
			},
			mftIndex: int(i),
			logger:   logger,
		})
	}
	return devices, nil
}

func (d *mfDevice) Info() ports.EncoderInfo { return d.info }

func (d *mfDevice) setIndex(i int) { d.info.Index = i }

func (d *mfDevice) CreateTransform(opts ports.EncoderOptions) (ports.Transform, error) {
	in := opts.Input
	if in.Codec != ports.CodecNV12 {
		return nil, fmt.Errorf("h264encoder: input must be nv12, got %s", in.Codec)
	}
	bitrate := opts.Bitrate
	if bitrate <= 0 {
		bitrate = defaultMFBitrate
	}
	if err := mfStartup(); err != nil {
		return nil, err
	}

	var enc *C.MFEncoder
	var op *C.char
	hr := C.openEncoder(C.UINT32(d.mftIndex), C.UINT32(in.Width), C.UINT32(in.Height),
		C.UINT32(in.FrameRate), C.UINT32(bitrate), &enc, &op)
	if hr < 0 {
		return nil, &HRESULTError{Op: C.GoString(op), Code: uint32(hr)}
	}

	return &mfTransform{
		enc:    enc,
		input:  in,
		output: ports.Format{Track: ports.TrackVideo, Codec: ports.CodecH264, Width: in.Width, Height: in.Height, FrameRate: in.FrameRate, Bitrate: bitrate},
		logger: d.logger.WithComponent("mft"),
	}, nil
}

// mfTransform adapts an asynchronous MFT to ports.Transform. The MFT's
// event queue is polled so that NextEvent honours its context.
type mfTransform struct {
	enc    *C.MFEncoder
	input  ports.Format
	output ports.Format
	logger ports.Logger

	header []byte
	closed bool
}

func (t *mfTransform) InputFormat() ports.Format  { return t.input }
func (t *mfTransform) OutputFormat() ports.Format { return t.output }

func (t *mfTransform) Begin() error {
	if hr := C.sendMessage(t.enc, C.MFT_MESSAGE_NOTIFY_BEGIN_STREAMING); hr < 0 {
		return &HRESULTError{Op: "NOTIFY_BEGIN_STREAMING", Code: uint32(hr)}
	}
	if hr := C.sendMessage(t.enc, C.MFT_MESSAGE_NOTIFY_START_OF_STREAM); hr < 0 {
		return &HRESULTError{Op: "NOTIFY_START_OF_STREAM", Code: uint32(hr)}
	}
	return nil
}

func (t *mfTransform) NextEvent(ctx context.Context) (ports.TransformEvent, error) {
	for {
		var met C.DWORD
		if hr := C.nextEvent(t.enc, &met); hr < 0 {
			return 0, &HRESULTError{Op: "GetEvent", Code: uint32(hr)}
		}
		switch met {
		case meTransformNeedInput:
			return ports.EventNeedInput, nil
		case meTransformHaveOutput:
			return ports.EventHaveOutput, nil
		case meTransformDrainComplete:
			return ports.EventDrainComplete, nil
		case 0:
		default:
			t.logger.Debug("Ignored MFT event %d", int(met))
			continue
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(eventPollInterval):
		}
	}
}

func (t *mfTransform) ProcessInput(sample ports.RawSample) error {
	if len(sample.Data) == 0 {
		return errors.New("h264encoder: empty video sample")
	}
	hr := C.processInput(t.enc, (*C.BYTE)(unsafe.Pointer(&sample.Data[0])), C.DWORD(len(sample.Data)),
		C.LONGLONG(sample.Time), C.LONGLONG(sample.Duration))
	switch {
	case uint32(hr) == hrNotAccepting:
		return ports.ErrNotAccepting
	case hr < 0:
		return &HRESULTError{Op: "ProcessInput", Code: uint32(hr)}
	}
	return nil
}

func (t *mfTransform) ProcessOutput() (ports.EncodedSample, error) {
	var out C.MFOutput
	hr := C.processOutput(t.enc, &out)
	if out.data != nil {
		defer C.free(unsafe.Pointer(out.data))
	}
	switch {
	case uint32(hr) == hrNeedMoreInput:
		return ports.EncodedSample{}, ports.ErrNeedMoreInput
	case hr < 0:
		return ports.EncodedSample{}, &HRESULTError{Op: "ProcessOutput", Code: uint32(hr)}
	}

	data := C.GoBytes(unsafe.Pointer(out.data), C.int(out.size))
	keyframe := out.keyframe != 0 || annexb.IsKeyframe(data)
	if keyframe {
		data = t.withParameterSets(data)
	}
	return ports.EncodedSample{
		Track:    ports.TrackVideo,
		Time:     int64(out.time),
		Duration: int64(out.duration),
		Data:     data,
		Keyframe: keyframe,
	}, nil
}

// withParameterSets prepends the sequence header to keyframes that lack
// inline SPS/PPS.
func (t *mfTransform) withParameterSets(au []byte) []byte {
	if sps, _ := annexb.ParameterSets(au); sps != nil {
		return au
	}
	if t.header == nil {
		var blob *C.BYTE
		var size C.UINT32
		if hr := C.sequenceHeader(t.enc, &blob, &size); hr < 0 {
			t.logger.Warn("Keyframe without SPS/PPS and no sequence header: HRESULT 0x%08X", uint32(hr))
			return au
		}
		t.header = C.GoBytes(unsafe.Pointer(blob), C.int(size))
		C.CoTaskMemFree(C.LPVOID(unsafe.Pointer(blob)))
	}
	return append(append([]byte(nil), t.header...), au...)
}

func (t *mfTransform) Drain() error {
	if hr := C.sendMessage(t.enc, C.MFT_MESSAGE_NOTIFY_END_OF_STREAM); hr < 0 {
		return &HRESULTError{Op: "NOTIFY_END_OF_STREAM", Code: uint32(hr)}
	}
	if hr := C.sendMessage(t.enc, C.MFT_MESSAGE_COMMAND_DRAIN); hr < 0 {
		return &HRESULTError{Op: "COMMAND_DRAIN", Code: uint32(hr)}
	}
	return nil
}

func (t *mfTransform) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	C.closeEncoder(t.enc)
	t.enc = nil
	return nil
}

var _ ports.Transform = (*mfTransform)(nil)
