package kvstore

import (
	"bytes"
	"context"
	"reflect"
	"testing"

	"github.com/tonio1998/snsulms-sub001/internal/database"
	"github.com/tonio1998/snsulms-sub001/internal/encryption"
	"github.com/tonio1998/snsulms-sub001/internal/lms"
)

// storeFactories lists every backend that must honour the lms.Store contract.
func storeFactories() map[string]func(t *testing.T) lms.Store {
	return map[string]func(t *testing.T) lms.Store{
		"memory": func(t *testing.T) lms.Store {
			return NewMemoryStore()
		},
		"filesystem": func(t *testing.T) lms.Store {
			s, err := NewFileSystemStore(t.TempDir())
			if err != nil {
				t.Fatalf("NewFileSystemStore() error = %v", err)
			}
			return s
		},
		"sqlite": func(t *testing.T) lms.Store {
			db, err := database.NewSQLiteDatabase(":memory:", nil)
			if err != nil {
				t.Fatalf("NewSQLiteDatabase() error = %v", err)
			}
			t.Cleanup(func() { db.Close() })
			return db
		},
		"s3": func(t *testing.T) lms.Store {
			return NewS3Store(newFakeS3(), "lms-cache", "device-1")
		},
		"encrypted": func(t *testing.T) lms.Store {
			s := NewEncryptedStore(NewMemoryStore(), encryption.NewTestEncryptor())
			if err := s.Unlock("pw"); err != nil {
				t.Fatalf("Unlock() error = %v", err)
			}
			return s
		},
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()

	for name, newStore := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			t.Run("get missing returns nil", func(t *testing.T) {
				s := newStore(t)
				got, err := s.Get(ctx, "events_42")
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if got != nil {
					t.Errorf("Get() = %q, want nil", got)
				}
			})

			t.Run("set then get", func(t *testing.T) {
				s := newStore(t)
				want := []byte(`{"data":[1,2,3]}`)
				if err := s.Set(ctx, "events_42", want); err != nil {
					t.Fatalf("Set() error = %v", err)
				}
				got, err := s.Get(ctx, "events_42")
				if err != nil {
					t.Fatalf("Get() error = %v", err)
				}
				if !bytes.Equal(got, want) {
					t.Errorf("Get() = %q, want %q", got, want)
				}
			})

			t.Run("set replaces", func(t *testing.T) {
				s := newStore(t)
				s.Set(ctx, "k", []byte("old"))
				if err := s.Set(ctx, "k", []byte("new")); err != nil {
					t.Fatalf("Set() error = %v", err)
				}
				got, _ := s.Get(ctx, "k")
				if string(got) != "new" {
					t.Errorf("Get() = %q, want %q", got, "new")
				}
			})

			t.Run("delete", func(t *testing.T) {
				s := newStore(t)
				s.Set(ctx, "k", []byte("v"))
				if err := s.Delete(ctx, "k"); err != nil {
					t.Fatalf("Delete() error = %v", err)
				}
				got, err := s.Get(ctx, "k")
				if err != nil || got != nil {
					t.Errorf("Get() after Delete = %q, %v; want nil, nil", got, err)
				}
				if err := s.Delete(ctx, "never-set"); err != nil {
					t.Errorf("Delete() of absent key error = %v", err)
				}
			})

			t.Run("list by prefix sorted", func(t *testing.T) {
				s := newStore(t)
				for _, k := range []string{"events_42", "class_wall_3", "activities_42_7", "class_activities_3", "events_date_42"} {
					if err := s.Set(ctx, k, []byte("v")); err != nil {
						t.Fatalf("Set(%q) error = %v", k, err)
					}
				}

				got, err := s.List(ctx, "class_")
				if err != nil {
					t.Fatalf("List() error = %v", err)
				}
				want := []string{"class_activities_3", "class_wall_3"}
				if !reflect.DeepEqual(got, want) {
					t.Errorf("List(class_) = %v, want %v", got, want)
				}

				all, _ := s.List(ctx, "")
				if len(all) != 5 {
					t.Errorf("List(\"\") returned %d keys, want 5", len(all))
				}
			})

			t.Run("keys with escapes round trip", func(t *testing.T) {
				s := newStore(t)
				key := "class_wall_a%5Fb/c"
				if err := s.Set(ctx, key, []byte("v")); err != nil {
					t.Fatalf("Set() error = %v", err)
				}
				got, _ := s.Get(ctx, key)
				if string(got) != "v" {
					t.Errorf("Get(%q) = %q, want %q", key, got, "v")
				}
				keys, _ := s.List(ctx, "class_wall_")
				if !reflect.DeepEqual(keys, []string{key}) {
					t.Errorf("List() = %v, want [%s]", keys, key)
				}
			})
		})
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	v := []byte("abc")
	s.Set(ctx, "k", v)
	v[0] = 'X'

	got, _ := s.Get(ctx, "k")
	got[1] = 'Y'

	again, _ := s.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("stored value mutated through caller slices: %q", again)
	}
}
