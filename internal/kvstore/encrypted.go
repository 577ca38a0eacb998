package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tonio1998/snsulms-sub001/internal/encryption"
	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

// ErrLocked is returned by EncryptedStore.Get before Unlock has been called.
var ErrLocked = errors.New("store is locked")

// EncryptedStore seals every value with an lms.Encryptor before it reaches
// the wrapped store. Writes only need the public key, so a locked store can
// still cache fresh data; reads need the unlocked private key. Keys are left
// in the clear so listing keeps working.
type EncryptedStore struct {
	inner lms.Store
	enc   lms.Encryptor

	mu sync.RWMutex
	dc lms.DecryptionContext
}

var _ lms.Store = (*EncryptedStore)(nil)

// NewEncryptedStore wraps inner. The store starts locked.
func NewEncryptedStore(inner lms.Store, enc lms.Encryptor) *EncryptedStore {
	return &EncryptedStore{inner: inner, enc: enc}
}

// Unlock enables reads for the rest of the session.
func (s *EncryptedStore) Unlock(passphrase string) error {
	dc, err := s.enc.Unlock(passphrase)
	if err != nil {
		return fmt.Errorf("unlocking store: %w", err)
	}
	s.mu.Lock()
	s.dc = dc
	s.mu.Unlock()
	return nil
}

// Locked reports whether reads are still disabled.
func (s *EncryptedStore) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dc == nil
}

func (s *EncryptedStore) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := s.inner.Get(ctx, key)
	if err != nil || sealed == nil {
		return nil, err
	}

	s.mu.RLock()
	dc := s.dc
	s.mu.RUnlock()
	if dc == nil {
		return nil, ErrLocked
	}

	plain, err := encryption.Open(dc, sealed)
	if err != nil {
		return nil, fmt.Errorf("decrypting %s: %w", key, err)
	}
	return plain, nil
}

func (s *EncryptedStore) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := encryption.Seal(s.enc, value)
	if err != nil {
		return fmt.Errorf("encrypting %s: %w", key, err)
	}
	return s.inner.Set(ctx, key, sealed)
}

func (s *EncryptedStore) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, key)
}

func (s *EncryptedStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}
