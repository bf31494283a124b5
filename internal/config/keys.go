package config

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"
)

// keyFileEnvelopeVersion versions the on-disk key store (keys.enc.json),
// which maps provider env-var name to an encrypted (or, as a logged
// fallback, plaintext) value.
const keyFileEnvelopeVersion = 1

type keyEnvelope struct {
	Version   int               `json:"version"`
	Encrypted map[string]string `json:"encrypted,omitempty"`
	Plaintext map[string]string `json:"plaintext,omitempty"`
}

// KeyStore holds provider API keys, encrypted at rest via
// golang.org/x/crypto/nacl/secretbox keyed from a machine-local seed
// file. If even the local seed cannot be established, entries are kept
// in a plaintext fallback file and a startup warning is expected from
// the caller.
type KeyStore struct {
	mu        sync.RWMutex
	path      string
	plaintext bool
	secretKey *[32]byte
	values    map[string]string
}

func openKeyStore(path string) (*KeyStore, error) {
	secretKey, err := machineSecretKey(filepath.Join(filepath.Dir(path), ".keyseed"))
	ks := &KeyStore{path: path, values: make(map[string]string)}
	if err != nil {
		ks.plaintext = true
	} else {
		ks.secretKey = secretKey
	}

	if _, statErr := os.Stat(path); statErr == nil {
		if err := ks.load(); err != nil {
			return nil, err
		}
	}
	return ks, nil
}

// machineSecretKey reads (or creates) a local key-seed file used to
// derive the secretbox key. It stands in for the OS credential facility
// (Keychain/Credential Manager/Secret Service), which this package never
// calls.
func machineSecretKey(seedPath string) (*[32]byte, error) {
	if data, err := os.ReadFile(seedPath); err == nil && len(data) == 32 {
		var key [32]byte
		copy(key[:], data)
		return &key, nil
	}

	var key [32]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return nil, fmt.Errorf("keystore: generate seed: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(seedPath), 0o700); err != nil {
		return nil, fmt.Errorf("keystore: seed dir: %w", err)
	}
	if err := os.WriteFile(seedPath, key[:], 0o600); err != nil {
		return nil, fmt.Errorf("keystore: write seed: %w", err)
	}
	return &key, nil
}

func (ks *KeyStore) load() error {
	data, err := os.ReadFile(ks.path)
	if err != nil {
		return fmt.Errorf("keystore: read %s: %w", ks.path, err)
	}
	var env keyEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("keystore: parse %s: %w", ks.path, err)
	}

	ks.mu.Lock()
	defer ks.mu.Unlock()

	for k, v := range env.Plaintext {
		if !isUnset(v) {
			ks.values[k] = v
		}
	}
	if ks.secretKey != nil {
		for k, b64 := range env.Encrypted {
			plain, ok := decrypt(*ks.secretKey, b64)
			if ok && !isUnset(plain) {
				ks.values[k] = plain
			}
		}
	}
	return nil
}

// Get returns the decrypted value for name, and whether it was set
// (treating empty and placeholder values as unset).
func (ks *KeyStore) Get(name string) (string, bool) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	v, ok := ks.values[name]
	if !ok || isUnset(v) {
		return "", false
	}
	return v, true
}

// All returns a copy of every set key, for a ConfigSnapshot.
func (ks *KeyStore) All() map[string]string {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	out := make(map[string]string, len(ks.values))
	for k, v := range ks.values {
		if !isUnset(v) {
			out[k] = v
		}
	}
	return out
}

// Set stores name=value and persists the key store to disk.
func (ks *KeyStore) Set(name, value string) error {
	ks.mu.Lock()
	ks.values[name] = value
	plaintext := ks.plaintext
	secretKey := ks.secretKey
	values := make(map[string]string, len(ks.values))
	for k, v := range ks.values {
		values[k] = v
	}
	ks.mu.Unlock()

	env := keyEnvelope{Version: keyFileEnvelopeVersion}
	if plaintext || secretKey == nil {
		env.Plaintext = values
	} else {
		env.Encrypted = make(map[string]string, len(values))
		for k, v := range values {
			env.Encrypted[k] = encrypt(*secretKey, v)
		}
	}

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(ks.path), 0o700); err != nil {
		return fmt.Errorf("keystore: dir: %w", err)
	}
	return os.WriteFile(ks.path, data, 0o600)
}

// IsPlaintextFallback reports whether this store is operating without
// encryption (no local secret key could be established).
func (ks *KeyStore) IsPlaintextFallback() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return ks.plaintext
}

func encrypt(key [32]byte, plaintext string) string {
	var nonce [24]byte
	_, _ = io.ReadFull(rand.Reader, nonce[:])
	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &key)
	return base64.StdEncoding.EncodeToString(sealed)
}

func decrypt(key [32]byte, b64 string) (string, bool) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil || len(raw) < 24 {
		return "", false
	}
	var nonce [24]byte
	copy(nonce[:], raw[:24])
	opened, ok := secretbox.Open(nil, raw[24:], &nonce, &key)
	if !ok {
		return "", false
	}
	return string(opened), true
}
