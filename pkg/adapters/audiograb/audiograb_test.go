package audiograb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/deskrec/pkg/adapters/logger"
	"github.com/user/deskrec/pkg/ports"
)

func TestGrabArgs(t *testing.T) {
	tests := []struct {
		name    string
		goos    string
		source  ports.AudioSource
		device  string
		want    string
		wantErr bool
	}{
		{"pulse loopback", "linux", ports.AudioLoopback, "", "-f pulse -fragment_size 1920 -i @DEFAULT_MONITOR@", false},
		{"pulse mic", "linux", ports.AudioMicrophone, "", "-i default", false},
		{"pulse device", "linux", ports.AudioMicrophone, "alsa_input.usb", "-i alsa_input.usb", false},
		{"dshow loopback", "windows", ports.AudioLoopback, "", "-i audio=virtual-audio-capturer", false},
		{"dshow mic without device", "windows", ports.AudioMicrophone, "", "", true},
		{"dshow mic", "windows", ports.AudioMicrophone, "Microphone (USB)", "-i audio=Microphone (USB)", false},
		{"avfoundation loopback without device", "darwin", ports.AudioLoopback, "", "", true},
		{"avfoundation mic", "darwin", ports.AudioMicrophone, "", "-i :default", false},
		{"unsupported", "plan9", ports.AudioLoopback, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := grabArgs(tt.goos, tt.source, tt.device)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			joined := strings.Join(args, " ")
			assert.Contains(t, joined, tt.want)
			assert.True(t, strings.HasSuffix(joined, "-ar 48000 -ac 2 -f s16le pipe:1"))
		})
	}
}

func TestOpen_NoneIsDisabled(t *testing.T) {
	g := New("ffmpeg", ports.AudioNone, "", logger.NewNoop())
	_, err := g.Open()
	assert.ErrorIs(t, err, ports.ErrAudioDisabled)
	assert.NoError(t, g.Close())
}

func TestIsSilent(t *testing.T) {
	assert.True(t, isSilent(make([]byte, 1920)))
	buf := make([]byte, 1920)
	buf[1000] = 1
	assert.False(t, isSilent(buf))
}

func TestFormat(t *testing.T) {
	f := Format()
	assert.Equal(t, 4, f.BytesPerFrame())
	assert.Equal(t, int64(100_000), f.FramesToDuration(PacketFrames))
}
