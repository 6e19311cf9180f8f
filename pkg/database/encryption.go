package database

import (
	"fmt"

	"github.com/firdasafridi/gocrypt"
)

// Cipher encrypts and decrypts the struct fields tagged `gocrypt:"aes"`.
type Cipher struct {
	opt *gocrypt.Option
}

// NewCipher creates a cipher from a hex encoded AES key.
func NewCipher(secretKey string) (*Cipher, error) {
	aesOpt, err := gocrypt.NewAESOpt(secretKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	return &Cipher{opt: &gocrypt.Option{AESOpt: aesOpt}}, nil
}

// Encrypt encrypts the tagged fields of entity in place. entity must be a pointer.
func (c *Cipher) Encrypt(entity any) error {
	return gocrypt.New(c.opt).Encrypt(entity)
}

// Decrypt decrypts the tagged fields of entity in place. entity must be a pointer.
func (c *Cipher) Decrypt(entity any) error {
	return gocrypt.New(c.opt).Decrypt(entity)
}
