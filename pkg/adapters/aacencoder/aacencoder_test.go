package aacencoder

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/deskrec/pkg/adapters/logger"
	"github.com/user/deskrec/pkg/ports"
)

var pcm = ports.Format{Track: ports.TrackAudio, Codec: ports.CodecPCM, SampleRate: 48000, Channels: 2, BitsPerSample: 16}

// adtsFrame builds an AAC-LC 48 kHz stereo ADTS frame without CRC.
func adtsFrame(payload []byte) []byte {
	n := 7 + len(payload)
	h := []byte{
		0xFF, 0xF1,
		0x01<<6 | 3<<2, // LC, 48 kHz
		2<<6 | byte(n>>11)&0x03,
		byte(n >> 3),
		byte(n&0x07)<<5 | 0x1F,
		0xFC,
	}
	return append(h, payload...)
}

func TestADTSFramer(t *testing.T) {
	var stream []byte
	stream = append(stream, adtsFrame([]byte{1, 2, 3})...)
	stream = append(stream, adtsFrame(bytes.Repeat([]byte{9}, 300))...)
	stream = append(stream, adtsFrame([]byte{7})[:5]...) // truncated tail

	r := bytes.NewReader(stream)
	f := ADTSFramer{}

	frame, err := f.ReadFrame(r)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, StripADTS(frame))

	frame, err = f.ReadFrame(r)
	require.NoError(t, err)
	assert.Len(t, StripADTS(frame), 300)

	_, err = f.ReadFrame(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestADTSFramer_LostSync(t *testing.T) {
	_, err := ADTSFramer{}.ReadFrame(bytes.NewReader([]byte{0, 1, 2, 3, 4, 5, 6, 7}))
	assert.ErrorIs(t, err, ErrBadADTS)
}

func TestParseADTSHeader(t *testing.T) {
	hdr, err := parseADTSHeader(adtsFrame(make([]byte, 20)))
	require.NoError(t, err)
	assert.True(t, hdr.protectionAbsent)
	assert.Equal(t, uint8(1), hdr.profile)
	assert.Equal(t, uint8(3), hdr.sampleRateIndex)
	assert.Equal(t, uint8(2), hdr.channelConfig)
	assert.Equal(t, 27, hdr.frameLength)
}

func TestStripADTS_WithCRC(t *testing.T) {
	frame := adtsFrame([]byte{0xAA, 0xBB, 0xCC})
	frame[1] &^= 0x01 // protection present: two CRC bytes follow the header
	assert.Equal(t, []byte{0xCC}, StripADTS(frame))
}

func TestPCMPayload_ExpandsSilence(t *testing.T) {
	silent := ports.RawSample{Duration: 100_000, Flags: ports.FlagSilent} // 10ms
	got := PCMPayload(pcm, silent)
	assert.Len(t, got, 480*4)
	assert.Equal(t, make([]byte, 480*4), got)

	data := []byte{1, 2, 3, 4}
	assert.Equal(t, data, PCMPayload(pcm, ports.RawSample{Data: data, Duration: 100_000}))
}

func TestCreateTransform(t *testing.T) {
	d := NewDevice("ffmpeg", logger.NewNoop())
	assert.Equal(t, ports.CodecAAC, d.Info().Codec)

	_, err := d.CreateTransform(ports.EncoderOptions{Input: ports.Format{Codec: ports.CodecNV12}})
	assert.Error(t, err)

	tr, err := d.CreateTransform(ports.EncoderOptions{Input: pcm})
	require.NoError(t, err)
	defer tr.Close()
	out := tr.OutputFormat()
	assert.Equal(t, 48000, out.SampleRate)
	assert.Equal(t, DefaultBitrate, out.Bitrate)
}
