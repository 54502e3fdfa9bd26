// Package tokens implements the delegation-token sealer: seal/unseal of
// short-lived, symmetric-sealed credentials (spec.md §4.1). The wire
// payload is JSON, compressed, then AES-128-CBC encrypted, and finally
// base64-encoded in a URL/header-safe alphabet.
package tokens

import (
	"bytes"
	"compress/zlib"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io/ioutil"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"storj.io/mantafront/pkg/apierrors"
)

// maxTokenBytes bounds the sealed output so it always fits an HTTP
// header (spec.md §4.1).
const maxTokenBytes = 8192

const pbkdf2Iterations = 4096

// Config is the sealer's crypto configuration, loaded once at process
// startup (spec.md §6 "forward-compatible across a restarted process").
type Config struct {
	Salt   []byte
	Key    []byte
	IV     []byte // 16 bytes, AES block size
	MaxAge time.Duration
}

func (c Config) aesKey() []byte {
	// 128-bit AES key derived from the operator-configured key material
	// and salt; this is the one place this package reaches for anything
	// beyond the standard library, because deriving a fixed-length key
	// from arbitrary-length operator input is exactly pbkdf2's job.
	return pbkdf2.Key(c.Key, c.Salt, pbkdf2Iterations, 16, sha256.New)
}

// Payload is the v2 sealed shape (spec.md §3 "Delegation token (v2)").
type Payload struct {
	T int64                  `json:"t"` // epoch ms
	P Principal              `json:"p"`
	C map[string]interface{} `json:"c"`
	V int                    `json:"v"`
}

// Principal is the identity-relevant subset carried inside a token.
type Principal struct {
	Account AccountRef  `json:"account"`
	User    *AccountRef `json:"user,omitempty"`
	Roles   []string    `json:"roles"`
}

// AccountRef is a minimal {uuid} reference.
type AccountRef struct {
	UUID string `json:"uuid"`
}

// forbiddenConditionKeys must never appear in a sealed token's condition
// subset (spec.md §3): these are re-derived fresh on every request that
// presents the token, never trusted from the token itself.
var forbiddenConditionKeys = map[string]struct{}{
	"date":       {},
	"sourceip":   {},
	"user-agent": {},
}

// Seal encrypts, compresses, and encodes payload. It refuses to emit a
// token that would not fit an HTTP header, returning InternalError rather
// than surface an over-long header downstream (spec.md §4.1).
func Seal(payload Payload, cfg Config) (string, error) {
	for key := range payload.C {
		if _, forbidden := forbiddenConditionKeys[key]; forbidden {
			return "", apierrors.Internal(errForbiddenCondition(key))
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", apierrors.Internal(err)
	}

	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(raw); err != nil {
		return "", apierrors.Internal(err)
	}
	if err := zw.Close(); err != nil {
		return "", apierrors.Internal(err)
	}

	block, err := aes.NewCipher(cfg.aesKey())
	if err != nil {
		return "", apierrors.Internal(err)
	}

	plaintext := pkcs7Pad(compressed.Bytes(), block.BlockSize())
	ciphertext := make([]byte, len(plaintext))
	cbc := cipher.NewCBCEncrypter(block, cfg.iv())
	cbc.CryptBlocks(ciphertext, plaintext)

	encoded := base64.RawURLEncoding.EncodeToString(ciphertext)
	if len(encoded) > maxTokenBytes {
		return "", apierrors.Internal(errTokenTooLarge)
	}
	return encoded, nil
}

// Unseal reverses Seal, accepting both v2 and legacy v1 payloads
// (spec.md §4.1). Every failure mode — bad base64, decryption failure,
// decompression failure, JSON-parse failure, unknown version, stale
// t — collapses to the same opaque error; no oracle distinguishes them.
func Unseal(opaque string, cfg Config, now time.Time) (*Payload, error) {
	payload, ok := tryUnseal(opaque, cfg, now)
	if !ok {
		return nil, invalidTokenErr()
	}
	return payload, nil
}

func tryUnseal(opaque string, cfg Config, now time.Time) (*Payload, bool) {
	ciphertext, err := base64.RawURLEncoding.DecodeString(opaque)
	if err != nil {
		return nil, false
	}
	block, err := aes.NewCipher(cfg.aesKey())
	if err != nil {
		return nil, false
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, false
	}

	plaintext := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, cfg.iv())
	cbc.CryptBlocks(plaintext, ciphertext)

	unpadded, ok := pkcs7Unpad(plaintext, block.BlockSize())
	if !ok {
		return nil, false
	}

	zr, err := zlib.NewReader(bytes.NewReader(unpadded))
	if err != nil {
		return nil, false
	}
	defer zr.Close()
	raw, err := ioutil.ReadAll(zr)
	if err != nil {
		return nil, false
	}

	var generic struct {
		V int `json:"v"`
	}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, false
	}

	var payload Payload
	switch generic.V {
	case 2:
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, false
		}
	case 1:
		var legacy legacyV1Payload
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, false
		}
		payload = legacy.toV2()
	case 0:
		// absent "v" defaults to legacy shape only if the legacy fields
		// are present; otherwise this is not a recognizable payload.
		var legacy legacyV1Payload
		if err := json.Unmarshal(raw, &legacy); err != nil || legacy.U == "" {
			return nil, false
		}
		payload = legacy.toV2()
	default:
		return nil, false
	}

	age := now.Sub(time.Unix(0, payload.T*int64(time.Millisecond)))
	if age < 0 || age > cfg.MaxAge {
		return nil, false
	}

	return &payload, true
}

// legacyV1Payload is the v1 wire shape: {u, l, g, t} (spec.md §4.1).
type legacyV1Payload struct {
	U string   `json:"u"` // account uuid
	L string   `json:"l"` // account login
	G []string `json:"g"` // groups
	T int64    `json:"t"`
}

func (l legacyV1Payload) toV2() Payload {
	isOperator := false
	for _, g := range l.G {
		if g == "operators" {
			isOperator = true
			break
		}
	}
	conditions := map[string]interface{}{}
	if isOperator {
		conditions["legacyOperator"] = true
	}
	return Payload{
		T: l.T,
		V: 1,
		P: Principal{Account: AccountRef{UUID: l.U}},
		C: conditions,
	}
}

func (c Config) iv() []byte {
	iv := make([]byte, 16)
	copy(iv, c.IV)
	return iv
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(data, padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, false
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, false
		}
	}
	return data[:len(data)-padLen], true
}

func invalidTokenErr() error {
	return apierrors.New(apierrors.CodeInvalidAuthenticationToken, "invalid token")
}

type tokenError string

func (e tokenError) Error() string { return string(e) }

var errTokenTooLarge = tokenError("sealed token exceeds header size budget")

func errForbiddenCondition(key string) error {
	return tokenError("condition key " + key + " must not be sealed into a token")
}
