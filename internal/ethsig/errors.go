package ethsig

import "errors"

var (
	ErrMalformedSignature = errors.New("signature must be 0x followed by 130 hex characters")
	ErrInvalidRecoveryID  = errors.New("invalid recovery id")
	ErrScalarOutOfRange   = errors.New("signature scalar out of range")
	ErrNoCurvePoint       = errors.New("r is not the x coordinate of a curve point")
	ErrRecoveryFailed     = errors.New("public key recovery failed")
)
