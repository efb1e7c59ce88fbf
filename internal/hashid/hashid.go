// Package hashid generates short hexadecimal identifiers from a seed string.
//
// The first candidate is a digest of the seed. When that candidate is taken,
// further candidates come from a pseudo-random sequence seeded by the digest,
// so the whole sequence is reproducible for a given seed.
package hashid

import (
	"math/rand/v2"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// digestMask keeps identifiers at 32 bits (8 hex digits at most).
const digestMask = 0xffffffff

// IsTaken reports whether a candidate id is already in use.
type IsTaken func(id string) bool

// Wrap turns a hex digest into the final identifier, typically by adding a kind tag.
type Wrap func(digest string) string

// Identity is the default Wrap.
func Identity(digest string) string { return digest }

// Digest returns the deterministic digest of seed as a hex string.
func Digest(seed string) string {
	return strconv.FormatUint(xxhash.Sum64String(seed)&digestMask, 16)
}

// Allocate returns wrap(digest(seed)) when it is free, otherwise the first free
// value produced by perturbing the digest with a PRNG seeded from it.
func Allocate(seed string, isTaken IsTaken, wrap Wrap) string {
	if wrap == nil {
		wrap = Identity
	}
	if isTaken == nil {
		isTaken = func(string) bool { return false }
	}

	sum := xxhash.Sum64String(seed)
	digest := sum & digestMask
	id := wrap(strconv.FormatUint(digest, 16))
	if !isTaken(id) {
		return id
	}

	rng := rand.New(rand.NewPCG(sum, digest))
	for {
		digest = (digest ^ rng.Uint64()) & digestMask
		id = wrap(strconv.FormatUint(digest, 16))
		if !isTaken(id) {
			return id
		}
	}
}
