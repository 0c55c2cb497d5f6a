package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

// ShareLen is the encoded length of one share: a 1-byte x-coordinate
// followed by a 32-byte big-endian field element.
const ShareLen = 1 + 32

var (
	// fieldP is the secp256k1 base-field prime 2^256 - 2^32 - 977.
	fieldP = mustFieldPrime()

	// ErrInvalidThreshold is returned for n/k combinations outside 1 < k <= n <= 255.
	ErrInvalidThreshold = errors.New("crypto/shamir: invalid n/k")
	// ErrSecretLength is returned when a secret is not exactly 32 bytes.
	ErrSecretLength = errors.New("crypto/shamir: secret must be 32 bytes")
	// ErrSecretOutOfField is returned when a 32-byte secret is >= the field prime.
	ErrSecretOutOfField = errors.New("crypto/shamir: secret out of field")
	// ErrNoShares is returned by Reconstruct on an empty share list.
	ErrNoShares = errors.New("crypto/shamir: no shares")
	// ErrShareLength is returned when a share is not exactly ShareLen bytes.
	ErrShareLength = errors.New("crypto/shamir: invalid share length")
	// ErrDuplicateX is returned when two shares carry the same x-coordinate.
	ErrDuplicateX = errors.New("crypto/shamir: duplicate share x-coordinate")
)

func mustFieldPrime() *big.Int {
	p, ok := new(big.Int).SetString("fffffffffffffffffffffffffffffffffffffffffffffffffffffffefffffc2f", 16)
	if !ok {
		panic("crypto/shamir: bad field prime literal")
	}
	// The literal above is 2^256 - 2^32 - 977 expressed in 64 hex digits;
	// verify it against the closed form once at init time rather than trust
	// a transcription by eye.
	want := new(big.Int).Lsh(big.NewInt(1), 256)
	want.Sub(want, new(big.Int).Lsh(big.NewInt(1), 32))
	want.Sub(want, big.NewInt(977))
	if p.Cmp(want) != 0 {
		panic("crypto/shamir: field prime mismatch")
	}
	return want
}

// Split divides a 32-byte secret into n shares such that any k of them
// reconstruct it via Lagrange interpolation, per spec section 4.1. secret
// must be < the field prime; out-of-range secrets are rejected rather than
// silently resampled (spec's documented reference behavior).
func Split(secret []byte, n, k int) ([][]byte, error) {
	if len(secret) != 32 {
		return nil, fmt.Errorf("%w: got %d", ErrSecretLength, len(secret))
	}
	if !(1 < k && k <= n && n <= 255) {
		return nil, fmt.Errorf("%w: n=%d k=%d", ErrInvalidThreshold, n, k)
	}
	s := new(big.Int).SetBytes(secret)
	if s.Cmp(fieldP) >= 0 {
		return nil, ErrSecretOutOfField
	}

	coeffs := make([]*big.Int, k)
	coeffs[0] = s
	for i := 1; i < k; i++ {
		c, err := randFieldElement()
		if err != nil {
			return nil, fmt.Errorf("crypto/shamir: sample coefficient: %w", err)
		}
		coeffs[i] = c
	}

	shares := make([][]byte, n)
	for x := 1; x <= n; x++ {
		y := evalPoly(coeffs, big.NewInt(int64(x)))
		share := make([]byte, ShareLen)
		share[0] = byte(x)
		yBytes := y.FillBytes(make([]byte, 32))
		copy(share[1:], yBytes)
		shares[x-1] = share
	}
	return shares, nil
}

// Reconstruct recovers the 32-byte secret from a set of shares via
// Lagrange interpolation at x=0. With fewer than the original threshold's
// worth of valid shares, it still returns a well-defined 32-byte value —
// callers rely on the AEAD authentication step to reject a wrong key,
// per spec section 4.1.
func Reconstruct(shares [][]byte) ([]byte, error) {
	if len(shares) == 0 {
		return nil, ErrNoShares
	}

	type point struct {
		x *big.Int
		y *big.Int
	}
	points := make([]point, len(shares))
	seen := make(map[byte]struct{}, len(shares))
	for i, sh := range shares {
		if len(sh) != ShareLen {
			return nil, fmt.Errorf("%w: got %d", ErrShareLength, len(sh))
		}
		if _, dup := seen[sh[0]]; dup {
			return nil, ErrDuplicateX
		}
		seen[sh[0]] = struct{}{}
		points[i] = point{
			x: big.NewInt(int64(sh[0])),
			y: new(big.Int).SetBytes(sh[1:]),
		}
	}

	secret := big.NewInt(0)
	for i, pi := range points {
		num := big.NewInt(1)
		den := big.NewInt(1)
		for j, pj := range points {
			if i == j {
				continue
			}
			negXj := new(big.Int).Neg(pj.x)
			negXj.Mod(negXj, fieldP)
			num.Mul(num, negXj)
			num.Mod(num, fieldP)

			diff := new(big.Int).Sub(pi.x, pj.x)
			diff.Mod(diff, fieldP)
			den.Mul(den, diff)
			den.Mod(den, fieldP)
		}
		denInv := modInverse(den)
		lagrange := new(big.Int).Mul(num, denInv)
		lagrange.Mod(lagrange, fieldP)

		term := new(big.Int).Mul(pi.y, lagrange)
		term.Mod(term, fieldP)
		secret.Add(secret, term)
		secret.Mod(secret, fieldP)
	}

	return secret.FillBytes(make([]byte, 32)), nil
}

// modInverse computes a^-1 mod fieldP via Fermat's little theorem
// (a^(p-2) mod p), as spec section 4.1 specifies.
func modInverse(a *big.Int) *big.Int {
	exp := new(big.Int).Sub(fieldP, big.NewInt(2))
	return new(big.Int).Exp(a, exp, fieldP)
}

func evalPoly(coeffs []*big.Int, x *big.Int) *big.Int {
	y := big.NewInt(0)
	power := big.NewInt(1)
	for _, c := range coeffs {
		term := new(big.Int).Mul(c, power)
		term.Mod(term, fieldP)
		y.Add(y, term)
		y.Mod(y, fieldP)
		power.Mul(power, x)
		power.Mod(power, fieldP)
	}
	return y
}

func randFieldElement() (*big.Int, error) {
	for {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		v := new(big.Int).SetBytes(buf)
		if v.Cmp(fieldP) < 0 {
			return v, nil
		}
	}
}

// GenerateSecret samples a uniformly random 32-byte value below the field
// prime, re-sampling on the negligible chance of landing >= P (spec
// section 9's documented alternative to rejecting; used here only for the
// rare internal test helper that needs a field-valid secret on demand —
// the actual per-record data key comes from GenerateDataKey, which samples
// plain 32 random bytes and lets Split reject out-of-range values per the
// reference behavior).
func GenerateSecret() ([]byte, error) {
	v, err := randFieldElement()
	if err != nil {
		return nil, err
	}
	return v.FillBytes(make([]byte, 32)), nil
}

// GenerateDataKey samples 32 uniformly random bytes for use as a per-record
// data key. It does not itself reject out-of-range values; Split does,
// per spec section 4.1's documented reference behavior.
func GenerateDataKey() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("crypto: generate data key: %w", err)
	}
	return buf, nil
}

// Zeroize overwrites b with zeros in place. Call via defer on every exit
// path that handled a PDK or unwrapped share.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
