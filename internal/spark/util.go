// util.go - Domain-separated hash functions, key derivation and the
// diversifier cipher.

package spark

import (
	"crypto/aes"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"golang.org/x/crypto/hkdf"

	"anoncoin/internal/group"
)

// Hash labels. Every hash in the protocol is separated by one of these.
const (
	labelSer      = "SER"
	labelVal      = "VAL"
	labelSer1     = "SER1"
	labelVal1     = "VAL1"
	labelDiv      = "DIV"
	labelQ2       = "Q2"
	labelBind     = "BIND"
	labelKDFDiv   = "KDF_DIV"
	labelKDFCoin  = "KDF_COIN"
	labelChaum    = "CHAUM"
	labelSchnorr  = "SCHNORR"
	labelMintBind = "MINT_BIND"
)

const diversifierBlockSize = aes.BlockSize

func scalarBytes(s group.Scalar) []byte {
	b := s.Bytes()
	return b[:]
}

func pointBytes(p group.Point) []byte {
	b := p.Bytes()
	return b[:]
}

func uint64Bytes(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

// hashSer derives the serial-number offset of a coin from its nonce and the
// serial context of the transaction that created it.
func hashSer(k group.Scalar, serialContext []byte) group.Scalar {
	return group.HashToScalar(labelSer, scalarBytes(k), serialContext)
}

// hashVal derives the value-commitment blinding factor from a coin nonce.
func hashVal(k group.Scalar) group.Scalar {
	return group.HashToScalar(labelVal, scalarBytes(k))
}

func hashSer1(s group.Scalar, d group.Point) group.Scalar {
	return group.HashToScalar(labelSer1, scalarBytes(s), pointBytes(d))
}

func hashVal1(s group.Scalar, d group.Point) group.Scalar {
	return group.HashToScalar(labelVal1, scalarBytes(s), pointBytes(d))
}

// hashDiv maps an encrypted diversifier to the base of Q1.
func hashDiv(d []byte) group.Point {
	return group.HashToPoint(labelDiv, d)
}

func hashQ2(s1 group.Scalar, i uint64) group.Scalar {
	return group.HashToScalar(labelQ2, scalarBytes(s1), uint64Bytes(i))
}

// kdfDiversifier returns the AES-256 key for diversifier encryption.
func kdfDiversifier(s1 group.Scalar) []byte {
	h := group.NewHasher(labelKDFDiv)
	h.WriteBytes(scalarBytes(s1))
	return h.Sum()[:32]
}

// kdfCoin returns the payload key for the shared point k·Q1 = s1·K.
func kdfCoin(shared group.Point) []byte {
	r := hkdf.New(sha256.New, pointBytes(shared), nil, []byte(labelKDFCoin))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		// hkdf yields up to 255 hash lengths.
		panic(err)
	}
	return key
}

// diversifierEncrypt encrypts the index as a single AES block: the index in
// little-endian order followed by zero padding.
func diversifierEncrypt(key []byte, i uint64) []byte {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	var plain [diversifierBlockSize]byte
	binary.LittleEndian.PutUint64(plain[:8], i)
	out := make([]byte, diversifierBlockSize)
	block.Encrypt(out, plain[:])
	return out
}

func diversifierDecrypt(key []byte, d []byte) (uint64, error) {
	if len(d) != diversifierBlockSize {
		return 0, ErrBadDiversifier
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return 0, err
	}
	var plain [diversifierBlockSize]byte
	block.Decrypt(plain[:], d)
	return binary.LittleEndian.Uint64(plain[:8]), nil
}
