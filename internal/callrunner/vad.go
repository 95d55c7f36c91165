package callrunner

import "encoding/binary"

// DefaultVADThreshold is the RMS energy level (over 16-bit signed PCM)
// above which a frame is classified as speech. No pack example ships a
// DSP/VAD library (the closest teacher/pack dependency surface is
// transport and storage, not audio signal processing), so this is a
// plain energy-threshold classifier over math/bits-level integer
// arithmetic rather than a third-party dependency forced in to fill a gap
// none of the examples address.
const DefaultVADThreshold = 600

// isSpeechFrame classifies one PCM frame (little-endian 16-bit signed
// samples, per telephony's 16kHz mono media contract) as speech or
// silence by comparing its RMS amplitude to threshold.
func isSpeechFrame(pcm []byte, threshold int) bool {
	if len(pcm) < 2 {
		return false
	}
	var sumSquares int64
	samples := len(pcm) / 2
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		v := int64(s)
		sumSquares += v * v
	}
	if samples == 0 {
		return false
	}
	meanSquare := sumSquares / int64(samples)
	return meanSquare > int64(threshold)*int64(threshold)
}
