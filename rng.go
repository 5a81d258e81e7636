package stm

import "math/bits"

// RNG is the contract the base protocol treats as a thin external
// collaborator: "uniform 64-bit random source, one instance per thread,
// mutually uncorrelated". go-stm only ever calls Next from the owning
// engine's own goroutine, so implementations do not need to be
// concurrency-safe.
type RNG interface {
	Next() uint64
}

// xoroshiro128pp is the default RNG: xoroshiro128++, grounded on
// original_source's Xoroshiro128pp. It is not cryptographically secure
// and is only ever used to jitter contention-manager backoff.
type xoroshiro128pp struct {
	s0, s1 uint64
}

// fixed, non-zero seed; every engine diverges from here via Jump.
const (
	xoroshiroSeed0 uint64 = 0x9e3779b97f4a7c15
	xoroshiroSeed1 uint64 = 0xbf58476d1ce4e5b9
)

func newXoroshiro128ppRaw() *xoroshiro128pp {
	return &xoroshiro128pp{s0: xoroshiroSeed0, s1: xoroshiroSeed1}
}

// newXoroshiro128pp satisfies the config.rngFactory shape: construct the
// default RNG, then advance it by jumpOffset independent streams so
// concurrently-initialized engines don't correlate their backoff jitter.
// See ThreadInit.
func newXoroshiro128pp(jumpOffset uint32) RNG {
	r := newXoroshiro128ppRaw()
	for i := uint32(0); i < jumpOffset; i++ {
		r.jump()
	}
	return r
}

func (x *xoroshiro128pp) Next() uint64 {
	s0, s1 := x.s0, x.s1
	result := bits.RotateLeft64(s0+s1, 17) + s0

	s1 ^= s0
	x.s0 = bits.RotateLeft64(s0, 49) ^ s1 ^ (s1 << 21)
	x.s1 = bits.RotateLeft64(s1, 28)

	return result
}

// jump is equivalent to 2^64 calls to Next, decorrelating the stream
// from any other stream produced by the same sequence of jumps. The
// constants are the standard xoroshiro128++ jump polynomial.
func (x *xoroshiro128pp) jump() {
	jumpConsts := [2]uint64{0x2bd7a6a6e99c2ddc, 0x0992ccaf6a6fca05}

	var s0, s1 uint64
	for _, jc := range jumpConsts {
		for b := 0; b < 64; b++ {
			if jc&(1<<uint(b)) != 0 {
				s0 ^= x.s0
				s1 ^= x.s1
			}
			x.Next()
		}
	}
	x.s0, x.s1 = s0, s1
}
