package tensor

import "math"

// Float16 is an IEEE 754 half-precision value stored in a uint16.
// Go has no native float16, so the mixed-precision path converts through
// this type to get half-precision rounding behavior while keeping the
// working buffers in float32.
//
// Format: 1 sign bit, 5 exponent bits (bias 15), 10 mantissa bits.
// Largest finite value: 65504. Smallest normal: 2^-14.
type Float16 uint16

const (
	f16SignMask  = 0x8000
	f16Infinity  = 0x7C00
	f16NaN       = 0x7E00
	f16MaxFinite = 65504.0
)

// ToFloat16 converts a float32 to half precision.
// Values above the float16 range become infinity, values below the
// smallest normal flush to signed zero, NaN stays NaN.
func ToFloat16(f float32) Float16 {
	if math.IsNaN(float64(f)) {
		return f16NaN
	}
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & f16SignMask
	bits &= 0x7FFFFFFF

	if bits >= 0x7F800000 { // infinity
		return Float16(sign | f16Infinity)
	}
	if bits > 0x477FE000 { // > 65504: overflow to infinity
		return Float16(sign | f16Infinity)
	}
	if bits < 0x38800000 { // < 2^-14: flush subnormals to zero
		return Float16(sign)
	}

	// Rebias exponent from 127 to 15, truncate mantissa to 10 bits
	// with round-to-nearest on the dropped bits.
	exp := (bits >> 23) - 127 + 15
	mantissa := bits & 0x7FFFFF
	rounded := (mantissa + 0x1000) >> 13
	if rounded == 0x400 { // mantissa rounded up into the exponent
		rounded = 0
		exp++
		if exp >= 0x1F {
			return Float16(sign | f16Infinity)
		}
	}
	return Float16(sign | uint16(exp<<10) | uint16(rounded))
}

// Float32 converts a half-precision value back to float32.
func (h Float16) Float32() float32 {
	sign := uint32(h&f16SignMask) << 16
	exp := uint32(h>>10) & 0x1F
	mantissa := uint32(h & 0x3FF)

	switch exp {
	case 0x1F:
		if mantissa == 0 {
			return math.Float32frombits(sign | 0x7F800000)
		}
		return math.Float32frombits(sign | 0x7FC00000)
	case 0:
		// Subnormals were flushed on conversion, so only zero remains.
		return math.Float32frombits(sign)
	}

	return math.Float32frombits(sign | (exp-15+127)<<23 | mantissa<<13)
}

// RoundHalf rounds every element of data through float16 in place.
// This is how the reduced-precision forward pass is emulated: op outputs
// are quantized to half precision between layers while the math itself
// runs in float32.
func RoundHalf(data []float32) {
	for i, v := range data {
		data[i] = ToFloat16(v).Float32()
	}
}
