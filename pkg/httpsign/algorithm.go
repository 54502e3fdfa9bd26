package httpsign

import (
	"crypto"
	"crypto/dsa" //nolint:staticcheck // DSA is part of the allow-list spec.md §4.2 requires.
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // SHA1 is part of the allow-list spec.md §4.2 requires.
	"crypto/sha256"
	"crypto/sha512"
	"crypto/x509"
	"encoding/pem"
	"hash"
	"math/big"
	"strings"

	"storj.io/mantafront/pkg/apierrors"
)

// KeyType is the asymmetric key family of a signature algorithm.
type KeyType string

// Allow-listed key types (spec.md §4.2).
const (
	KeyTypeRSA   KeyType = "rsa"
	KeyTypeDSA   KeyType = "dsa"
	KeyTypeECDSA KeyType = "ecdsa"
)

// HashType is the digest algorithm paired with a KeyType.
type HashType string

// Allow-listed hash types (spec.md §4.2).
const (
	HashSHA1   HashType = "sha1"
	HashSHA256 HashType = "sha256"
	HashSHA384 HashType = "sha384"
	HashSHA512 HashType = "sha512"
)

// Algorithm is a parsed, allow-listed "<keytype>-<hashtype>" value.
type Algorithm struct {
	Key  KeyType
	Hash HashType
}

var validKeyTypes = map[KeyType]struct{}{KeyTypeRSA: {}, KeyTypeDSA: {}, KeyTypeECDSA: {}}
var validHashTypes = map[HashType]struct{}{HashSHA1: {}, HashSHA256: {}, HashSHA384: {}, HashSHA512: {}}

// ParseAlgorithm parses and validates raw (e.g. "rsa-sha256") against the
// {RSA,DSA,ECDSA} x {SHA1,SHA256,SHA384,SHA512} allow-list.
func ParseAlgorithm(raw string) (Algorithm, error) {
	lower := strings.ToLower(raw)
	idx := strings.IndexByte(lower, '-')
	if idx < 0 {
		return Algorithm{}, invalidAlgorithm()
	}
	kt, ht := KeyType(lower[:idx]), HashType(lower[idx+1:])
	if _, ok := validKeyTypes[kt]; !ok {
		return Algorithm{}, invalidAlgorithm()
	}
	if _, ok := validHashTypes[ht]; !ok {
		return Algorithm{}, invalidAlgorithm()
	}
	return Algorithm{Key: kt, Hash: ht}, nil
}

func invalidAlgorithm() error {
	return apierrors.New(apierrors.CodeInvalidAlgorithm, "unsupported signature algorithm")
}

func (h HashType) cryptoHash() (crypto.Hash, func() hash.Hash) {
	switch h {
	case HashSHA1:
		return crypto.SHA1, sha1.New
	case HashSHA256:
		return crypto.SHA256, sha256.New
	case HashSHA384:
		return crypto.SHA384, sha512.New384
	case HashSHA512:
		return crypto.SHA512, sha512.New
	default:
		return 0, nil
	}
}

// VerifySignature checks signature against signingString using publicKeyPEM
// and alg. A key of the wrong type for alg, or a signature that does not
// verify, returns InvalidSignatureError; a publicKeyPEM that does not
// decode or parse as a public key returns InternalError.
func VerifySignature(alg Algorithm, publicKeyPEM string, signingString string, signature []byte) error {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return internalCrypto()
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		// Some keyrings store PKCS1 RSA keys directly.
		if rsaPub, rsaErr := x509.ParsePKCS1PublicKey(block.Bytes); rsaErr == nil {
			pub = rsaPub
		} else {
			return internalCrypto()
		}
	}

	cryptoHash, hasher := alg.Hash.cryptoHash()
	if hasher == nil {
		return invalidAlgorithm()
	}
	h := hasher()
	h.Write([]byte(signingString))
	digest := h.Sum(nil)

	switch alg.Key {
	case KeyTypeRSA:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return invalidSignature()
		}
		if err := rsa.VerifyPKCS1v15(key, cryptoHash, digest, signature); err != nil {
			return invalidSignature()
		}
		return nil
	case KeyTypeDSA:
		key, ok := pub.(*dsa.PublicKey)
		if !ok {
			return invalidSignature()
		}
		r, s := new(big.Int), new(big.Int)
		half := len(signature) / 2
		if half == 0 {
			return invalidSignature()
		}
		r.SetBytes(signature[:half])
		s.SetBytes(signature[half:])
		if !dsa.Verify(key, digest, r, s) {
			return invalidSignature()
		}
		return nil
	case KeyTypeECDSA:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return invalidSignature()
		}
		r, s := new(big.Int), new(big.Int)
		half := len(signature) / 2
		if half == 0 {
			return invalidSignature()
		}
		r.SetBytes(signature[:half])
		s.SetBytes(signature[half:])
		if !ecdsa.Verify(key, digest, r, s) {
			return invalidSignature()
		}
		return nil
	default:
		return invalidAlgorithm()
	}
}

func invalidSignature() error {
	return apierrors.New(apierrors.CodeInvalidSignature, "signature verification failed")
}

func internalCrypto() error {
	return apierrors.New(apierrors.CodeInternalError, "unable to parse public key")
}
