package ethsig

import "math/big"

// secp256k1 domain parameters (SEC 2, section 2.4.1). a = 0.
var (
	curveP  = mustHex("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEFFFFFC2F")
	curveN  = mustHex("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141")
	curveB  = big.NewInt(7)
	curveGx = mustHex("79BE667EF9DCBBAC55A06295CE870B07029BFCDB2DCE28D959F2815B16F81798")
	curveGy = mustHex("483ADA7726A3C4655DA4FBFC0E1108A8FD17B448A68554199C47D08FFB10D4B8")

	generator = &point{x: curveGx, y: curveGy}

	// (p+1)/4; p ≡ 3 mod 4 so a square root of a is a^((p+1)/4).
	sqrtExp = new(big.Int).Rsh(new(big.Int).Add(curveP, big.NewInt(1)), 2)
)

func mustHex(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("ethsig: bad curve constant " + s)
	}
	return v
}

// point is an affine curve point. A nil *point is the point at infinity.
type point struct {
	x, y *big.Int
}

func modP(v *big.Int) *big.Int { return v.Mod(v, curveP) }

// curveRHS returns x^3 + 7 mod p.
func curveRHS(x *big.Int) *big.Int {
	rhs := new(big.Int).Mul(x, x)
	rhs.Mul(rhs, x)
	rhs.Add(rhs, curveB)
	return modP(rhs)
}

func isOnCurve(pt *point) bool {
	if pt == nil {
		return false
	}
	if pt.x.Sign() < 0 || pt.x.Cmp(curveP) >= 0 || pt.y.Sign() < 0 || pt.y.Cmp(curveP) >= 0 {
		return false
	}
	lhs := modP(new(big.Int).Mul(pt.y, pt.y))
	return lhs.Cmp(curveRHS(pt.x)) == 0
}

func addPoints(a, b *point) *point {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	if a.x.Cmp(b.x) == 0 {
		if a.y.Cmp(b.y) == 0 {
			return doublePoint(a)
		}
		// b == -a
		return nil
	}

	// λ = (y2 - y1) / (x2 - x1)
	num := modP(new(big.Int).Sub(b.y, a.y))
	den := modP(new(big.Int).Sub(b.x, a.x))
	lambda := modP(num.Mul(num, den.ModInverse(den, curveP)))

	x3 := new(big.Int).Mul(lambda, lambda)
	x3.Sub(x3, a.x)
	x3.Sub(x3, b.x)
	modP(x3)

	y3 := new(big.Int).Sub(a.x, x3)
	y3.Mul(y3, lambda)
	y3.Sub(y3, a.y)
	modP(y3)

	return &point{x: x3, y: y3}
}

func doublePoint(a *point) *point {
	if a == nil || a.y.Sign() == 0 {
		return nil
	}

	// λ = 3x² / 2y
	num := new(big.Int).Mul(a.x, a.x)
	num.Mul(num, big.NewInt(3))
	den := new(big.Int).Lsh(a.y, 1)
	den.ModInverse(modP(den), curveP)
	lambda := modP(num.Mul(num, den))

	x3 := new(big.Int).Mul(lambda, lambda)
	x3.Sub(x3, new(big.Int).Lsh(a.x, 1))
	modP(x3)

	y3 := new(big.Int).Sub(a.x, x3)
	y3.Mul(y3, lambda)
	y3.Sub(y3, a.y)
	modP(y3)

	return &point{x: x3, y: y3}
}

// scalarMult computes k·pt by left-to-right double-and-add. k is taken as is;
// callers reduce it mod n.
func scalarMult(k *big.Int, pt *point) *point {
	var acc *point
	for i := k.BitLen() - 1; i >= 0; i-- {
		acc = doublePoint(acc)
		if k.Bit(i) == 1 {
			acc = addPoints(acc, pt)
		}
	}
	return acc
}

// liftX returns the curve point with the given x coordinate and y parity, or
// false when x is not the abscissa of any point.
func liftX(x *big.Int, odd bool) (*point, bool) {
	if x.Sign() < 0 || x.Cmp(curveP) >= 0 {
		return nil, false
	}
	alpha := curveRHS(x)
	y := new(big.Int).Exp(alpha, sqrtExp, curveP)
	if modP(new(big.Int).Mul(y, y)).Cmp(alpha) != 0 {
		return nil, false
	}
	if (y.Bit(0) == 1) != odd {
		y.Sub(curveP, y)
	}
	return &point{x: new(big.Int).Set(x), y: y}, true
}
