// Package ethsig recovers Ethereum signer addresses from personal_sign
// signatures. The secp256k1 arithmetic is implemented here directly on
// math/big; only Keccak-256 comes from golang.org/x/crypto.
package ethsig

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

const (
	signaturePrefix = "0x"
	signatureHexLen = 130

	personalMessagePrefix = "\x19Ethereum Signed Message:\n"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

type PublicKey struct {
	X, Y *big.Int
}

// Bytes returns the 65-byte uncompressed SEC1 encoding 0x04||X||Y.
func (k *PublicKey) Bytes() []byte {
	out := make([]byte, 65)
	out[0] = 0x04
	k.X.FillBytes(out[1:33])
	k.Y.FillBytes(out[33:65])
	return out
}

// Signature is a parsed 65-byte r||s||v signature. V is always 27 or 28.
type Signature struct {
	R, S *big.Int
	V    byte
}

func (s Signature) RecoveryID() byte { return s.V - 27 }

// ParseSignature validates and splits a hex signature. A v of 0 or 1 is
// normalized to 27 or 28.
func ParseSignature(sig string) (Signature, error) {
	if len(sig) != len(signaturePrefix)+signatureHexLen || !strings.HasPrefix(sig, signaturePrefix) {
		return Signature{}, ErrMalformedSignature
	}
	raw, err := hex.DecodeString(sig[len(signaturePrefix):])
	if err != nil {
		return Signature{}, ErrMalformedSignature
	}
	v := raw[64]
	if v < 27 {
		v += 27
	}
	if v != 27 && v != 28 {
		return Signature{}, fmt.Errorf("%w: v=%d", ErrInvalidRecoveryID, raw[64])
	}
	return Signature{
		R: new(big.Int).SetBytes(raw[0:32]),
		S: new(big.Int).SetBytes(raw[32:64]),
		V: v,
	}, nil
}

func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// PersonalMessageHash is the EIP-191 version 0x45 digest signed by
// personal_sign. The decimal length is the byte length of message.
func PersonalMessageHash(message string) []byte {
	prefix := fmt.Sprintf("%s%d", personalMessagePrefix, len(message))
	return Keccak256([]byte(prefix), []byte(message))
}

// RecoverPublicKey implements SEC 1 v2 section 4.1.6 for secp256k1 with the
// candidate selected by recID.
func RecoverPublicKey(hash []byte, r, s *big.Int, recID byte) (*PublicKey, error) {
	if recID > 3 {
		return nil, ErrInvalidRecoveryID
	}
	if r.Sign() <= 0 || r.Cmp(curveN) >= 0 || s.Sign() <= 0 || s.Cmp(curveN) >= 0 {
		return nil, ErrScalarOutOfRange
	}

	// x = r + j·n for j = recID>>1; the y parity is recID&1.
	x := new(big.Int).Set(r)
	if recID>>1 == 1 {
		x.Add(x, curveN)
	}
	R, ok := liftX(x, recID&1 == 1)
	if !ok {
		return nil, ErrNoCurvePoint
	}

	e := new(big.Int).SetBytes(hash)
	e.Mod(e, curveN)
	rInv := new(big.Int).ModInverse(r, curveN)

	// Q = r⁻¹(sR − eG) = (−e·r⁻¹)G + (s·r⁻¹)R
	u1 := new(big.Int).Neg(e)
	u1.Mul(u1, rInv)
	u1.Mod(u1, curveN)
	u2 := new(big.Int).Mul(s, rInv)
	u2.Mod(u2, curveN)

	Q := addPoints(scalarMult(u1, generator), scalarMult(u2, R))
	if Q == nil || !isOnCurve(Q) {
		return nil, ErrRecoveryFailed
	}

	if !verify(hash, r, s, Q) {
		return nil, ErrRecoveryFailed
	}
	return &PublicKey{X: Q.x, Y: Q.y}, nil
}

// verify checks the ECDSA equation (e·s⁻¹·G + r·s⁻¹·Q).x ≡ r (mod n).
func verify(hash []byte, r, s *big.Int, Q *point) bool {
	e := new(big.Int).SetBytes(hash)
	e.Mod(e, curveN)
	w := new(big.Int).ModInverse(s, curveN)
	u1 := new(big.Int).Mul(e, w)
	u1.Mod(u1, curveN)
	u2 := new(big.Int).Mul(r, w)
	u2.Mod(u2, curveN)

	X := addPoints(scalarMult(u1, generator), scalarMult(u2, Q))
	if X == nil {
		return false
	}
	v := new(big.Int).Mod(X.x, curveN)
	return v.Cmp(r) == 0
}

// PublicKeyToAddress derives the lowercase 0x-prefixed account address: the
// low 20 bytes of Keccak-256 over X||Y.
func PublicKeyToAddress(pub *PublicKey) string {
	digest := Keccak256(pub.Bytes()[1:])
	return signaturePrefix + hex.EncodeToString(digest[12:])
}

// RecoverAddress returns the address that produced signature over the
// personal-message hash of message.
func RecoverAddress(message, signature string) (string, error) {
	sig, err := ParseSignature(signature)
	if err != nil {
		return "", err
	}
	pub, err := RecoverPublicKey(PersonalMessageHash(message), sig.R, sig.S, sig.RecoveryID())
	if err != nil {
		return "", err
	}
	return PublicKeyToAddress(pub), nil
}

// VerifySignature reports whether signature over message recovers to
// expected, compared case-insensitively. It never panics.
func VerifySignature(message, signature, expected string) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	addr, err := RecoverAddress(message, signature)
	if err != nil {
		return false
	}
	return strings.EqualFold(addr, strings.TrimSpace(expected))
}

func IsValidAddress(addr string) bool {
	return addressPattern.MatchString(addr)
}

func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
