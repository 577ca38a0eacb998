package encryption

import (
	"bytes"

	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

// Seal encrypts a whole value in memory.
func Seal(enc lms.Encryptor, plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := enc.Encrypt(bytes.NewReader(plaintext), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Open decrypts a value produced by Seal.
func Open(dc lms.DecryptionContext, ciphertext []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := dc.Decrypt(bytes.NewReader(ciphertext), &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
