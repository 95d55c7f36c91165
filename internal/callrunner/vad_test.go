package callrunner

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func toneFrame(n int, amplitude int16) []byte {
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

func TestIsSpeechFrame_LoudFrameIsSpeech(t *testing.T) {
	assert.True(t, isSpeechFrame(toneFrame(160, 20000), DefaultVADThreshold))
}

func TestIsSpeechFrame_SilentFrameIsNotSpeech(t *testing.T) {
	assert.False(t, isSpeechFrame(make([]byte, 320), DefaultVADThreshold))
}

func TestIsSpeechFrame_EmptyFrameIsNotSpeech(t *testing.T) {
	assert.False(t, isSpeechFrame(nil, DefaultVADThreshold))
}

func TestIsSpeechFrame_QuietFrameBelowThresholdIsNotSpeech(t *testing.T) {
	assert.False(t, isSpeechFrame(toneFrame(160, 50), DefaultVADThreshold))
}
