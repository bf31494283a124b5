package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestKeyStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.enc.json")

	ks, err := openKeyStore(path)
	if err != nil {
		t.Fatalf("openKeyStore: %v", err)
	}
	if ks.IsPlaintextFallback() {
		t.Fatalf("expected encryption with a writable seed dir")
	}
	if err := ks.Set("ANTHROPIC_API_KEY", "sk-secret"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// The value must not appear in cleartext on disk.
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("key file missing: %v", err)
	}
	var env keyEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("key file not JSON: %v", err)
	}
	if len(env.Plaintext) != 0 {
		t.Fatalf("plaintext entries written despite encryption: %v", env.Plaintext)
	}
	if env.Encrypted["ANTHROPIC_API_KEY"] == "sk-secret" {
		t.Fatalf("key stored unencrypted")
	}

	// A fresh store over the same files decrypts with the same seed.
	ks2, err := openKeyStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok := ks2.Get("ANTHROPIC_API_KEY")
	if !ok || got != "sk-secret" {
		t.Fatalf("Get after reopen = %q, %v", got, ok)
	}
}

func TestKeyStorePlaceholderTreatedAsUnset(t *testing.T) {
	dir := t.TempDir()
	ks, err := openKeyStore(filepath.Join(dir, "keys.enc.json"))
	if err != nil {
		t.Fatalf("openKeyStore: %v", err)
	}
	if err := ks.Set("SOME_KEY", "your_api_key_here"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := ks.Get("SOME_KEY"); ok {
		t.Fatalf("placeholder value should read as unset")
	}
	if all := ks.All(); len(all) != 0 {
		t.Fatalf("placeholder leaked into All(): %v", all)
	}
}

func TestEncryptDecrypt(t *testing.T) {
	var key [32]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))

	sealed := encrypt(key, "the payload")
	got, ok := decrypt(key, sealed)
	if !ok || got != "the payload" {
		t.Fatalf("decrypt = %q, %v", got, ok)
	}

	var wrong [32]byte
	if _, ok := decrypt(wrong, sealed); ok {
		t.Fatalf("decrypt succeeded with the wrong key")
	}
	if _, ok := decrypt(key, "not base64!!!"); ok {
		t.Fatalf("decrypt succeeded on garbage")
	}
}

func TestMachineSecretKeyIsStable(t *testing.T) {
	seed := filepath.Join(t.TempDir(), ".keyseed")
	k1, err := machineSecretKey(seed)
	if err != nil {
		t.Fatalf("machineSecretKey: %v", err)
	}
	k2, err := machineSecretKey(seed)
	if err != nil {
		t.Fatalf("machineSecretKey reread: %v", err)
	}
	if *k1 != *k2 {
		t.Fatalf("seed not stable across reads")
	}
}
