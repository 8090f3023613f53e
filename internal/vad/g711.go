package vad

// ITU-T G.711 μ-law codec. The decode table is built once at init; the
// encoder is the standard segment/bias algorithm. Re-encoding a decoded
// byte reproduces it exactly, with the single exception of 0x7F
// (negative zero), which aliases to 0xFF.

const (
	ulawBias = 0x84
	ulawClip = 32635
)

var ulawDecodeTable [256]int16

func init() {
	for i := 0; i < 256; i++ {
		u := ^byte(i)
		sign := u & 0x80
		exp := (u >> 4) & 0x07
		mant := u & 0x0F

		magnitude := ((int32(mant)<<3 + ulawBias) << exp) - ulawBias
		if sign != 0 {
			magnitude = -magnitude
		}
		ulawDecodeTable[i] = int16(magnitude)
	}
}

// DecodeULaw expands one μ-law byte to a 16-bit linear sample.
func DecodeULaw(b byte) int16 {
	return ulawDecodeTable[b]
}

// EncodeULaw compresses a 16-bit linear sample to one μ-law byte.
func EncodeULaw(sample int16) byte {
	var sign byte
	s := int32(sample)
	if s < 0 {
		s = -s
		sign = 0x80
	}
	if s > ulawClip {
		s = ulawClip
	}
	s += ulawBias

	exp := byte(7)
	for mask := int32(0x4000); exp > 0 && s&mask == 0; exp-- {
		mask >>= 1
	}
	mant := byte((s >> (exp + 3)) & 0x0F)

	return ^(sign | exp<<4 | mant)
}

// DecodeULawFrame expands a μ-law frame into linear PCM samples.
func DecodeULawFrame(frame []byte) []int16 {
	out := make([]int16, len(frame))
	for i, b := range frame {
		out[i] = ulawDecodeTable[b]
	}
	return out
}
