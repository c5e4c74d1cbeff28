package aescrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/sha256"
	"fmt"
)

var zipMagic = []byte{0x50, 0x4B, 0x03, 0x04}

// Decryptor reverses the OA producer's encryption: AES-128 in ECB mode with a
// key derived from the first 16 bytes of SHA-256(decrypt code). Blobs that
// already start with a ZIP magic were stored unencrypted and pass through.
type Decryptor struct{}

func New() *Decryptor {
	return &Decryptor{}
}

func (d *Decryptor) Decrypt(data []byte, code string) ([]byte, error) {
	if bytes.HasPrefix(data, zipMagic) {
		return data, nil
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(data))
	}

	digest := sha256.Sum256([]byte(code))
	block, err := aes.NewCipher(digest[:16])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	plain := make([]byte, len(data))
	for offset := 0; offset < len(data); offset += aes.BlockSize {
		block.Decrypt(plain[offset:offset+aes.BlockSize], data[offset:offset+aes.BlockSize])
	}
	return stripPKCS7(plain), nil
}

// stripPKCS7 removes valid PKCS#7 padding and tolerates its absence: the
// producer occasionally ships unpadded payloads.
func stripPKCS7(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	n := int(data[len(data)-1])
	if n == 0 || n > aes.BlockSize || n > len(data) {
		return data
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return data
		}
	}
	return data[:len(data)-n]
}
