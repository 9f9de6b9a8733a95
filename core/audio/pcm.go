package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/zaf/g711"
)

// EncodeS16LE packs samples as 16-bit signed little-endian PCM.
func EncodeS16LE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// DecodeS16LE unpacks 16-bit signed little-endian PCM. A trailing odd byte is
// dropped.
func DecodeS16LE(data []byte) []int16 {
	out := make([]int16, len(data)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return out
}

// RMS computes the root-mean-square loudness of a sample buffer, normalized
// to [0, 1].
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Duration reports how long a raw buffer plays for under the given encoding.
func Duration(byteLen int, encoding EncodingInfo) time.Duration {
	byteSize := encoding.Format.ByteSize()
	if byteSize <= 0 || encoding.SampleRate <= 0 {
		return 0
	}

	samples := byteLen / byteSize
	return time.Duration(float64(samples) / float64(encoding.SampleRate) * float64(time.Second))
}

// Transcode converts a raw buffer between the supported wire formats. The
// sample rate is left untouched; only the sample format changes.
func Transcode(data []byte, from, to encodingFormat) ([]byte, error) {
	if from == to {
		return data, nil
	}

	switch {
	case from == EncodingLinear16 && to == EncodingMulaw:
		return g711.EncodeUlaw(data), nil
	case from == EncodingLinear16 && to == EncodingALaw:
		return g711.EncodeAlaw(data), nil
	case from == EncodingMulaw && to == EncodingLinear16:
		return g711.DecodeUlaw(data), nil
	case from == EncodingALaw && to == EncodingLinear16:
		return g711.DecodeAlaw(data), nil
	case from == EncodingMulaw && to == EncodingALaw:
		return g711.Ulaw2Alaw(data), nil
	case from == EncodingALaw && to == EncodingMulaw:
		return g711.Alaw2Ulaw(data), nil
	}

	return nil, fmt.Errorf("unsupported transcode: %s to %s", from.Name(), to.Name())
}
