package audio

import "encoding/binary"

// Resample converts 16-bit little-endian mono PCM from rate from to rate to
// by linear interpolation. The input is returned unchanged when the rates
// match or either is non-positive. A trailing odd byte is dropped.
func Resample(pcm []byte, from, to int) []byte {
	if from == to || from <= 0 || to <= 0 || len(pcm) < BytesPerSample {
		return pcm
	}
	src := len(pcm) / BytesPerSample
	dst := int(int64(src) * int64(to) / int64(from))
	out := make([]byte, dst*BytesPerSample)
	step := float64(from) / float64(to)

	sample := func(i int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:])))
	}
	for i := range dst {
		pos := float64(i) * step
		j := int(pos)
		s0 := sample(j)
		s1 := s0
		if j+1 < src {
			s1 = sample(j + 1)
		}
		frac := pos - float64(j)
		v := int16(s0*(1-frac) + s1*frac)
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(v))
	}
	return out
}
