package rfc8291

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	AuthSecretLen = 16
	SaltLen       = 16

	gcmOverhead = 16

	ikmLen   = 32
	cekLen   = 16
	nonceLen = 12

	// RFC8188 padding delimiters: 0x01 ends a non-final record, 0x02 the last one.
	recordDelimiter = 0x01
	finalDelimiter  = 0x02
)

var (
	ErrInvalidAuthSecret = fmt.Errorf("rfc8291: auth secret must be %d bytes", AuthSecretLen)
	ErrInvalidSalt       = fmt.Errorf("rfc8291: salt must be %d bytes", SaltLen)
	ErrInvalidPadding    = errors.New("rfc8291: record has no padding delimiter")
)

// RFC8291 implements Web Push message encryption over the aes128gcm content coding.
type RFC8291 struct {
	hash func() hash.Hash
}

// Default Hash is SHA256
func NewRFC8291(hash func() hash.Hash) *RFC8291 {
	if hash == nil {
		hash = sha256.New
	}
	return &RFC8291{hash: hash}
}

// NewSecrets generates a user agent's auth secret and key pair, or an
// application server's salt and ephemeral key.
func NewSecrets(curve ecdh.Curve) (auth, salt []byte, key *ecdh.PrivateKey, err error) {
	auth = make([]byte, AuthSecretLen)
	salt = make([]byte, SaltLen)
	for _, b := range [][]byte{auth, salt} {
		if _, err := io.ReadFull(rand.Reader, b); err != nil {
			return nil, nil, nil, fmt.Errorf("rfc8291: generate random secret: %w", err)
		}
	}

	key, err = curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("rfc8291: generate ecdh key: %w", err)
	}
	return auth, salt, key, nil
}

func (c *RFC8291) Encrypt(
	plaintext []byte,
	salt []byte,
	authSecret []byte,
	useragentPublicKey *ecdh.PublicKey,
	appserverPrivateKey *ecdh.PrivateKey,
) ([]byte, error) {
	if err := checkSecrets(authSecret, salt); err != nil {
		return nil, err
	}

	ecdhSecret, err := appserverPrivateKey.ECDH(useragentPublicKey)
	if err != nil {
		return nil, fmt.Errorf("rfc8291: calculate ecdh secret: %w", err)
	}

	aead, nonce, err := c.aead(authSecret, salt, ecdhSecret, useragentPublicKey, appserverPrivateKey.PublicKey())
	if err != nil {
		return nil, err
	}

	record := append(bytes.Clone(plaintext), finalDelimiter)
	ciphertext := aead.Seal(nil, nonce, record, nil)

	return Marshal(Payload{
		RS:         uint32(len(record) + gcmOverhead),
		Salt:       salt,
		KeyID:      appserverPrivateKey.PublicKey().Bytes(),
		CipherText: ciphertext,
	}), nil
}

func (c *RFC8291) Decrypt(
	ciphertext []byte,
	salt []byte,
	authSecret []byte,
	useragentPrivateKey *ecdh.PrivateKey,
	appserverPublicKey *ecdh.PublicKey,
) ([]byte, error) {
	if err := checkSecrets(authSecret, salt); err != nil {
		return nil, err
	}

	ecdhSecret, err := useragentPrivateKey.ECDH(appserverPublicKey)
	if err != nil {
		return nil, fmt.Errorf("rfc8291: calculate ecdh secret: %w", err)
	}

	aead, nonce, err := c.aead(authSecret, salt, ecdhSecret, useragentPrivateKey.PublicKey(), appserverPublicKey)
	if err != nil {
		return nil, err
	}

	record, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("rfc8291: open record: %w", err)
	}
	return unpad(record)
}

// DecryptPayload decrypts a complete aes128gcm body. The key id in the
// header carries the application server's public key.
func (c *RFC8291) DecryptPayload(
	data []byte,
	curve ecdh.Curve,
	authSecret []byte,
	useragentPrivateKey *ecdh.PrivateKey,
) ([]byte, error) {
	payload, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}

	appserverPublicKey, err := curve.NewPublicKey(payload.KeyID)
	if err != nil {
		return nil, fmt.Errorf("rfc8291: load application server key: %w", err)
	}

	return c.Decrypt(payload.CipherText, payload.Salt, authSecret, useragentPrivateKey, appserverPublicKey)
}

func checkSecrets(authSecret, salt []byte) error {
	if len(authSecret) != AuthSecretLen {
		return ErrInvalidAuthSecret
	}
	if len(salt) != SaltLen {
		return ErrInvalidSalt
	}
	return nil
}

// unpad strips trailing zero padding and the delimiter octet.
func unpad(record []byte) ([]byte, error) {
	i := len(record) - 1
	for i >= 0 && record[i] == 0 {
		i--
	}
	if i < 0 || (record[i] != finalDelimiter && record[i] != recordDelimiter) {
		return nil, ErrInvalidPadding
	}
	return record[:i], nil
}

func (c *RFC8291) aead(
	authSecret []byte,
	salt []byte,
	ecdhSecret []byte,
	useragentPublicKey *ecdh.PublicKey,
	appserverPublicKey *ecdh.PublicKey,
) (cipher.AEAD, []byte, error) {
	ikm, err := c.ikm(authSecret, ecdhSecret, useragentPublicKey, appserverPublicKey)
	if err != nil {
		return nil, nil, err
	}

	cek, nonce, err := c.cekAndNonce(ikm, salt)
	if err != nil {
		return nil, nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, nil, fmt.Errorf("rfc8291: create cipher block: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("rfc8291: create gcm: %w", err)
	}
	return gcm, nonce, nil
}

func (c *RFC8291) ikm(
	authSecret []byte,
	ecdhSecret []byte,
	useragentPublicKey *ecdh.PublicKey,
	appserverPublicKey *ecdh.PublicKey,
) ([]byte, error) {
	prk := hkdf.Extract(c.hash, ecdhSecret, authSecret)

	keyInfo := bytes.Join([][]byte{
		[]byte("WebPush: info\000"),
		useragentPublicKey.Bytes(),
		appserverPublicKey.Bytes(),
	}, nil)

	ikm := make([]byte, ikmLen)
	if _, err := io.ReadFull(hkdf.Expand(c.hash, prk, keyInfo), ikm); err != nil {
		return nil, fmt.Errorf("rfc8291: read ikm: %w", err)
	}
	return ikm, nil
}

func (c *RFC8291) cekAndNonce(ikm []byte, salt []byte) (cek, nonce []byte, err error) {
	prk := hkdf.Extract(c.hash, ikm, salt)

	cek = make([]byte, cekLen)
	if _, err := io.ReadFull(hkdf.Expand(c.hash, prk, []byte("Content-Encoding: aes128gcm\000")), cek); err != nil {
		return nil, nil, fmt.Errorf("rfc8291: read cek: %w", err)
	}

	nonce = make([]byte, nonceLen)
	if _, err := io.ReadFull(hkdf.Expand(c.hash, prk, []byte("Content-Encoding: nonce\000")), nonce); err != nil {
		return nil, nil, fmt.Errorf("rfc8291: read nonce: %w", err)
	}
	return cek, nonce, nil
}
