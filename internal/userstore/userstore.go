// Package userstore persists user records and checks credentials. It is the
// only component that touches password material.
package userstore

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sptf/backend/internal/sptferr"
)

const (
	pbkdf2Iterations = 4096
	pbkdf2KeyLength  = 32
)

// User is one account row. The digest is derived from the password and the
// per-user salt; the plain password is never stored.
type User struct {
	ID       string `gorm:"primaryKey"`
	Username string `gorm:"uniqueIndex;not null"`
	Salt     []byte `gorm:"not null"`
	Password []byte `gorm:"not null"`
}

type Store struct {
	db *gorm.DB
}

// Open opens (and migrates) the sqlite user database at path.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Signup creates a new account. Taken usernames fail with UsernameExists.
func (s *Store) Signup(username, password string) error {
	var existing User
	err := s.db.Where("username = ?", username).First(&existing).Error
	if err == nil {
		return sptferr.Newf(sptferr.UsernameExists, "username %s", username)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("userstore: query username %s: %v", username, err)
		return sptferr.New(sptferr.Unexpected, "query username")
	}

	salt := uuid.New()
	user := User{
		ID:       uuid.NewString(),
		Username: username,
		Salt:     salt[:],
		Password: hashPassword(password, salt[:]),
	}
	if err := s.db.Create(&user).Error; err != nil {
		log.Printf("userstore: create user %s: %v", username, err)
		return sptferr.New(sptferr.Unexpected, "create user")
	}
	return nil
}

// Authenticate verifies a username/password pair and returns the user id.
func (s *Store) Authenticate(username, password string) (uuid.UUID, error) {
	var user User
	err := s.db.Where("username = ?", username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, sptferr.Newf(sptferr.NoUsername, "username %s", username)
	}
	if err != nil {
		log.Printf("userstore: query username %s: %v", username, err)
		return uuid.Nil, sptferr.New(sptferr.Unexpected, "query username")
	}

	digest := hashPassword(password, user.Salt)
	if subtle.ConstantTimeCompare(digest, user.Password) != 1 {
		return uuid.Nil, sptferr.Newf(sptferr.UnmatchedPassword, "username %s", username)
	}

	id, err := uuid.Parse(user.ID)
	if err != nil {
		log.Printf("userstore: parse stored id %q: %v", user.ID, err)
		return uuid.Nil, sptferr.New(sptferr.Unexpected, "parse user id")
	}
	return id, nil
}

func hashPassword(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
}
