// Package peerstore implements the Peer NMK Store of spec section 4.3: one
// long-lived 32-byte node master key per configured peer, generated on
// first touch and persisted at rest in a bbolt database, wrapping and
// unwrapping shares with AES-256-GCM.
package peerstore

import (
	"crypto/rand"
	"fmt"
	"time"

	tacrypto "github.com/rubinhealth/ta-core/crypto"
	bolt "go.etcd.io/bbolt"
)

var bucketNMKs = []byte("peer_nmks")

// Store owns one NMK per peer id, generalizing the teacher's bbolt
// open/bucket/transaction idiom (node/store/db.go) from a blockchain
// header/UTXO keyspace to a single peer-id → key-bytes bucket.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the bbolt file at path, and ensures every
// id in peerIDs has a persisted 32-byte key, generating one with
// crypto/rand for any that doesn't — all inside the same transaction that
// creates the bucket, so initialization is atomic.
func Open(path string, peerIDs []string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("peerstore: open %s: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketNMKs)
		if err != nil {
			return fmt.Errorf("peerstore: create bucket: %w", err)
		}
		for _, pid := range peerIDs {
			if v := b.Get([]byte(pid)); v != nil {
				if len(v) != tacrypto.KeyLen {
					return fmt.Errorf("peerstore: persisted key for %q has invalid length %d", pid, len(v))
				}
				continue
			}
			key := make([]byte, tacrypto.KeyLen)
			if _, err := rand.Read(key); err != nil {
				return fmt.Errorf("peerstore: generate key for %q: %w", pid, err)
			}
			if err := b.Put([]byte(pid), key); err != nil {
				return fmt.Errorf("peerstore: persist key for %q: %w", pid, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying bbolt database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) load(peerID string) ([]byte, error) {
	var key []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNMKs)
		if b == nil {
			return fmt.Errorf("peerstore: bucket missing")
		}
		v := b.Get([]byte(peerID))
		if v == nil {
			return fmt.Errorf("peerstore: unknown peer %q", peerID)
		}
		if len(v) != tacrypto.KeyLen {
			return fmt.Errorf("peerstore: invalid NMK length for %q", peerID)
		}
		key = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return key, nil
}

// WrapShare encrypts share under peerID's NMK with AES-256-GCM, binding
// aad, and returns a base64-encoded nonce‖ciphertext token suitable for
// storage as a JSON string in the ledger record.
func (s *Store) WrapShare(peerID string, share, aad []byte) (string, error) {
	key, err := s.load(peerID)
	if err != nil {
		return "", err
	}
	defer tacrypto.Zeroize(key)

	sealed, err := tacrypto.Encrypt(key, share, aad)
	if err != nil {
		return "", fmt.Errorf("peerstore: wrap share for %q: %w", peerID, err)
	}
	blob := make([]byte, 0, tacrypto.NonceLen+len(sealed.Ciphertext))
	blob = append(blob, sealed.Nonce[:]...)
	blob = append(blob, sealed.Ciphertext...)
	return encodeToken(blob), nil
}

// UnwrapShare decrypts a token produced by WrapShare. It fails with
// tacrypto.ErrAuthentication on any tag or AAD mismatch; a token that is
// not valid base64 or is shorter than a nonce fails with a decode or
// length error instead.
func (s *Store) UnwrapShare(peerID string, token string, aad []byte) ([]byte, error) {
	key, err := s.load(peerID)
	if err != nil {
		return nil, err
	}
	defer tacrypto.Zeroize(key)

	blob, err := decodeToken(token)
	if err != nil {
		return nil, fmt.Errorf("peerstore: decode token for %q: %w", peerID, err)
	}
	if len(blob) < tacrypto.NonceLen {
		return nil, fmt.Errorf("peerstore: token too short for %q", peerID)
	}
	var nonce [tacrypto.NonceLen]byte
	copy(nonce[:], blob[:tacrypto.NonceLen])
	ct := blob[tacrypto.NonceLen:]

	share, err := tacrypto.Decrypt(key, nonce, ct, aad)
	if err != nil {
		return nil, err
	}
	return share, nil
}
