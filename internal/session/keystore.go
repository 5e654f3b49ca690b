package session

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// ErrWrongPassphrase is returned when a keystore cannot be opened.
var ErrWrongPassphrase = errors.New("keystore: wrong passphrase")

type kdfParams struct {
	N int `json:"n"`
	R int `json:"r"`
	P int `json:"p"`
}

var defaultKDF = kdfParams{N: 1 << 15, R: 8, P: 1}

type keystoreFile struct {
	Version    int       `json:"version"`
	Address    string    `json:"address"`
	KDF        kdfParams `json:"kdf"`
	Salt       string    `json:"salt"`
	Nonce      string    `json:"nonce"`
	Ciphertext string    `json:"ciphertext"`
}

// SaveKeystore encrypts the signer's seed under passphrase and writes it to path.
func SaveKeystore(path string, signer *KeySigner, passphrase string) error {
	return saveKeystore(path, signer, passphrase, defaultKDF)
}

func saveKeystore(path string, signer *KeySigner, passphrase string, params kdfParams) error {
	if passphrase == "" {
		return fmt.Errorf("keystore passphrase is required")
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	key, err := deriveKey(passphrase, salt, params)
	if err != nil {
		return err
	}
	sealed := secretbox.Seal(nil, signer.Seed(), &nonce, key)

	data, err := json.MarshalIndent(keystoreFile{
		Version:    1,
		Address:    signer.Address(),
		KDF:        params,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Nonce:      base64.StdEncoding.EncodeToString(nonce[:]),
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode keystore: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadKeystore decrypts the keystore at path.
func LoadKeystore(path, passphrase string) (*KeySigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keystore: %w", err)
	}

	var file keystoreFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse keystore: %w", err)
	}

	salt, err := base64.StdEncoding.DecodeString(file.Salt)
	if err != nil {
		return nil, fmt.Errorf("invalid keystore salt: %w", err)
	}
	nonceBytes, err := base64.StdEncoding.DecodeString(file.Nonce)
	if err != nil || len(nonceBytes) != 24 {
		return nil, fmt.Errorf("invalid keystore nonce")
	}
	sealed, err := base64.StdEncoding.DecodeString(file.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("invalid keystore ciphertext: %w", err)
	}

	key, err := deriveKey(passphrase, salt, file.KDF)
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	copy(nonce[:], nonceBytes)

	seed, ok := secretbox.Open(nil, sealed, &nonce, key)
	if !ok {
		return nil, ErrWrongPassphrase
	}

	signer, err := NewKeySigner(seed)
	if err != nil {
		return nil, err
	}
	if file.Address != "" && file.Address != signer.Address() {
		return nil, fmt.Errorf("keystore address %s does not match key", file.Address)
	}
	return signer, nil
}

func deriveKey(passphrase string, salt []byte, params kdfParams) (*[32]byte, error) {
	raw, err := scrypt.Key([]byte(passphrase), salt, params.N, params.R, params.P, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
