package crypto

import (
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Verify reports whether sig is a valid ECDSA signature of hash by pub.
// The recovery id is ignored and out-of-range r or s yield false.
func Verify(hash []byte, sig Signature, pub *PublicKey) bool {
	if pub == nil || len(hash) != scalarSize {
		return false
	}
	if !inScalarRange(sig.R) || !inScalarRange(sig.S) {
		return false
	}
	return ecdsa.NewSignature(toModN(sig.R), toModN(sig.S)).Verify(hash, pub.key)
}

// RecoverPublicKey computes the public key that produced sig over hash,
// using recoveryID to pick among the candidate points.
//
// Bit 0 of recoveryID selects the parity of R.y and the remaining bits add
// multiples of n to r to form R.x.
func RecoverPublicKey(recoveryID int, sig Signature, hash []byte) (*PublicKey, error) {
	if recoveryID < 0 {
		return nil, ErrInvalidRecoveryID
	}
	if !inScalarRange(sig.R) || !inScalarRange(sig.S) {
		return nil, ErrInvalidSignature
	}
	if len(hash) != scalarSize {
		return nil, ErrInvalidHash
	}

	x := new(big.Int).Mul(big.NewInt(int64(recoveryID/2)), curveN)
	x.Add(x, sig.R)
	if x.Cmp(curveP) >= 0 {
		return nil, ErrOutOfField
	}

	var xBytes [scalarSize]byte
	x.FillBytes(xBytes[:])
	var fx, fy secp256k1.FieldVal
	fx.SetBytes(&xBytes)
	if !secp256k1.DecompressY(&fx, recoveryID&1 == 1, &fy) {
		return nil, ErrInvalidPoint
	}

	var point secp256k1.JacobianPoint
	point.X.Set(&fx)
	point.Y.Set(&fy)
	point.Z.SetInt(1)

	// n*R must be the point at infinity, computed as (n-1)*R + R.
	var nMinusOne secp256k1.ModNScalar
	nMinusOne.SetInt(1).Negate()
	var negR, check secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(&nMinusOne, &point, &negR)
	secp256k1.AddNonConst(&negR, &point, &check)
	if !isInfinity(&check) {
		return nil, ErrInvalidPoint
	}

	// Q = r^-1 * (s*R - e*G)
	r := toModN(sig.R)
	s := toModN(sig.S)
	var e secp256k1.ModNScalar
	e.SetByteSlice(hash)

	var rInv secp256k1.ModNScalar
	rInv.InverseValNonConst(r)
	var u1, u2 secp256k1.ModNScalar
	u1.Mul2(&e, &rInv).Negate()
	u2.Mul2(s, &rInv)

	var u1G, u2R, q secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(&u1, &u1G)
	secp256k1.ScalarMultNonConst(&u2, &point, &u2R)
	secp256k1.AddNonConst(&u1G, &u2R, &q)
	if isInfinity(&q) {
		return nil, ErrInvalidPoint
	}
	q.ToAffine()

	return &PublicKey{key: secp256k1.NewPublicKey(&q.X, &q.Y)}, nil
}

// SignedTokenToKey hashes message with the token digest and recovers the
// signing key from a header-encoded signature.
func SignedTokenToKey(message []byte, sig CompactSignature) (*PublicKey, error) {
	recoveryID, err := sig.RecoveryID()
	if err != nil {
		return nil, err
	}
	return RecoverPublicKey(recoveryID, Signature{R: sig.R, S: sig.S, RecoveryID: recoveryID}, Hash(message))
}

func isInfinity(p *secp256k1.JacobianPoint) bool {
	return (p.X.IsZero() && p.Y.IsZero()) || p.Z.IsZero()
}
