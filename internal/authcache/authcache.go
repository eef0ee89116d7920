// Package authcache maps auth tokens to user ids with a sliding expiration
// window. Tokens gate both the live connection and every file endpoint.
package authcache

import (
	"errors"
	"log"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/sptf/backend/internal/sptferr"
)

// Cache is the token store. A token is an opaque random 128-bit identifier
// rendered as a string; the mapped value is the owning user's id. Multiple
// live tokens per user are allowed.
type Cache struct {
	db  *badger.DB
	ttl time.Duration
}

// Open opens the token store at dir.
func Open(dir string, ttl time.Duration) (*Cache, error) {
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// OpenInMemory opens a store that is not persisted, for tests and ephemeral
// deployments.
func OpenInMemory(ttl time.Duration) (*Cache, error) {
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	if err != nil {
		return nil, err
	}
	return &Cache{db: db, ttl: ttl}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// Issue stores a fresh random token for userID and returns it. Previously
// issued tokens for the same user stay valid.
func (c *Cache) Issue(userID uuid.UUID) (uuid.UUID, error) {
	token := uuid.New()
	if err := c.store(token, userID); err != nil {
		return uuid.Nil, err
	}
	return token, nil
}

// Validate resolves a token to its user id and renews the token's TTL, so an
// actively used token never expires mid-session. A malformed, unknown or
// expired token fails with ValidateAuthTokenFailed.
func (c *Cache) Validate(tokenStr string) (uuid.UUID, error) {
	token, err := uuid.Parse(tokenStr)
	if err != nil {
		log.Printf("authcache: parse token %q: %v", tokenStr, err)
		return uuid.Nil, sptferr.New(sptferr.ValidateAuthTokenFailed, "malformed token")
	}

	var userID uuid.UUID
	err = c.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(token.String()))
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		userID, err = uuid.ParseBytes(val)
		if err != nil {
			return err
		}
		// Sliding expiration: re-store the same mapping with a fresh TTL.
		entry := badger.NewEntry([]byte(token.String()), val).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		if !errors.Is(err, badger.ErrKeyNotFound) {
			log.Printf("authcache: validate token %s: %v", token, err)
		}
		return uuid.Nil, sptferr.Newf(sptferr.ValidateAuthTokenFailed, "token %s", token)
	}
	return userID, nil
}

// Revoke deletes the token mapping. Revoking an unknown token is a no-op.
func (c *Cache) Revoke(tokenStr string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(tokenStr))
	})
	if err != nil {
		log.Printf("authcache: revoke token %q: %v", tokenStr, err)
		return sptferr.New(sptferr.Unexpected, "revoke token")
	}
	return nil
}

func (c *Cache) store(token, userID uuid.UUID) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(token.String()), []byte(userID.String())).WithTTL(c.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		log.Printf("authcache: store token %s for user %s: %v", token, userID, err)
		return sptferr.New(sptferr.UpdateAuthTokenFailed, "store token")
	}
	return nil
}
