package encryption

import (
	"bytes"
	"fmt"
	"io"

	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

// testHeader marks values written by TestEncryptor.
var testHeader = []byte("LMSENC\x00\x00")

// TestEncryptor is a deterministic stand-in for AgeEncryptor. It prefixes a
// fixed header on Encrypt and strips it on Decrypt, so sealed values differ
// from plaintext without any key material.
type TestEncryptor struct {
	configured bool
}

var _ lms.Encryptor = (*TestEncryptor)(nil)

// NewTestEncryptor creates a TestEncryptor that reports itself configured.
func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{configured: true}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.configured = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (e *TestEncryptor) Unlock(passphrase string) (lms.DecryptionContext, error) {
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return e.configured
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ lms.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
