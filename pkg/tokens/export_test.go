package tokens

import (
	"bytes"
	"compress/zlib"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
)

// SealRawForTest seals arbitrary JSON bytes the same way Seal does,
// bypassing the Payload/forbidden-condition checks. It exists only so
// external tests can build legacy v1 and malformed-version fixtures that
// the typed Payload/Seal path cannot represent.
func SealRawForTest(raw []byte, cfg Config) (string, error) {
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(raw); err != nil {
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}

	block, err := aes.NewCipher(cfg.aesKey())
	if err != nil {
		return "", err
	}
	plaintext := pkcs7Pad(compressed.Bytes(), block.BlockSize())
	ciphertext := make([]byte, len(plaintext))
	cbc := cipher.NewCBCEncrypter(block, cfg.iv())
	cbc.CryptBlocks(ciphertext, plaintext)

	return base64.RawURLEncoding.EncodeToString(ciphertext), nil
}
