package credentials

import (
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	eperrors "github.com/emailpilot/epctl/pkg/errors"
)

// staticKeyProvider returns a fixed key for tests.
type staticKeyProvider struct{ key []byte }

func (p *staticKeyProvider) GetKey() ([]byte, error) { return p.key, nil }
func (p *staticKeyProvider) Description() string     { return "static test key" }

func testStore(t *testing.T) *Store {
	t.Helper()
	key := make([]byte, keyLength)
	copy(key, []byte("0123456789abcdef0123456789abcdef"))

	store, err := NewStoreAt(t.TempDir(), &staticKeyProvider{key: key})
	if err != nil {
		t.Fatalf("NewStoreAt: %v", err)
	}
	return store
}

func TestSetAndGetClientKey(t *testing.T) {
	store := testStore(t)

	if err := store.SetClientKey("acme", "sk-live-abc123", "production"); err != nil {
		t.Fatalf("SetClientKey: %v", err)
	}

	got, err := store.GetClientKey("acme")
	if err != nil {
		t.Fatalf("GetClientKey: %v", err)
	}
	if got != "sk-live-abc123" {
		t.Errorf("key = %q, want sk-live-abc123", got)
	}
}

func TestGetClientKey_Missing(t *testing.T) {
	store := testStore(t)

	_, err := store.GetClientKey("nobody")
	if !errors.Is(err, eperrors.ErrNoAPIKey) {
		t.Errorf("error = %v, want ErrNoAPIKey", err)
	}

	if err := store.SetClientKey("acme", "sk-1", ""); err != nil {
		t.Fatal(err)
	}
	_, err = store.GetClientKey("other")
	if !errors.Is(err, eperrors.ErrNoAPIKey) {
		t.Errorf("error for unknown client = %v, want ErrNoAPIKey", err)
	}
}

func TestGetClientKey_EnvOverride(t *testing.T) {
	store := testStore(t)
	t.Setenv("EPCTL_API_KEY", "sk-from-env")

	got, err := store.GetClientKey("any-client")
	if err != nil {
		t.Fatalf("GetClientKey: %v", err)
	}
	if got != "sk-from-env" {
		t.Errorf("key = %q, want env override", got)
	}
}

func TestKeysEncryptedAtRest(t *testing.T) {
	store := testStore(t)
	if err := store.SetClientKey("acme", "sk-live-secret", ""); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(filepath.Join(store.credentialsDir, DefaultCredentialsFile))
	if err != nil {
		t.Fatalf("reading credentials file: %v", err)
	}
	if strings.Contains(string(raw), "sk-live-secret") {
		t.Error("plaintext API key found on disk")
	}
}

func TestDeleteClientKey(t *testing.T) {
	store := testStore(t)
	if err := store.SetClientKey("acme", "sk-1", ""); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteClientKey("acme"); err != nil {
		t.Fatalf("DeleteClientKey: %v", err)
	}
	if _, err := store.GetClientKey("acme"); !errors.Is(err, eperrors.ErrNoAPIKey) {
		t.Errorf("error after delete = %v, want ErrNoAPIKey", err)
	}

	// Deleting again, or with nothing stored, is fine.
	if err := store.DeleteClientKey("acme"); err != nil {
		t.Errorf("repeat delete: %v", err)
	}
}

func TestListClients(t *testing.T) {
	store := testStore(t)
	for _, id := range []string{"zeta", "acme", "mid"} {
		if err := store.SetClientKey(id, "sk-"+id, "label-"+id); err != nil {
			t.Fatal(err)
		}
	}

	entries, ids, err := store.ListClients()
	if err != nil {
		t.Fatalf("ListClients: %v", err)
	}
	want := []string{"acme", "mid", "zeta"}
	if len(ids) != len(want) {
		t.Fatalf("ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("ids[%d] = %q, want %q (sorted)", i, ids[i], want[i])
		}
	}
	for id, entry := range entries {
		if entry.APIKey != "" {
			t.Errorf("ListClients leaked key material for %s", id)
		}
		if entry.Label != "label-"+id {
			t.Errorf("label for %s = %q", id, entry.Label)
		}
	}
}

func TestSetClientKey_Validation(t *testing.T) {
	store := testStore(t)

	if err := store.SetClientKey("", "sk-1", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("empty client error = %v, want ErrInvalidCredentials", err)
	}
	if err := store.SetClientKey("acme", "", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("empty key error = %v, want ErrInvalidCredentials", err)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	store := testStore(t)

	for _, plaintext := range []string{"sk-1", "", "a long key with spaces and unicode ✓"} {
		ct, err := store.encrypt(plaintext)
		if err != nil {
			t.Fatalf("encrypt(%q): %v", plaintext, err)
		}
		pt, err := store.decrypt(ct)
		if err != nil {
			t.Fatalf("decrypt(%q): %v", plaintext, err)
		}
		if pt != plaintext {
			t.Errorf("round trip = %q, want %q", pt, plaintext)
		}
	}
}

func TestDecrypt_Garbage(t *testing.T) {
	store := testStore(t)

	if _, err := store.decrypt("not base64!!!"); !errors.Is(err, ErrEncryptionFailed) {
		t.Errorf("bad base64 error = %v, want ErrEncryptionFailed", err)
	}
	if _, err := store.decrypt("c2hvcnQ="); !errors.Is(err, ErrEncryptionFailed) {
		t.Errorf("short ciphertext error = %v, want ErrEncryptionFailed", err)
	}
}

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"short", "*****"},
		{"sk-live-abcdef123456", "sk-l********...3456"},
	}
	for _, tt := range tests {
		if got := MaskAPIKey(tt.in); got != tt.want {
			t.Errorf("MaskAPIKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvKeyProvider(t *testing.T) {
	key := make([]byte, keyLength)
	for i := range key {
		key[i] = byte(i)
	}
	t.Setenv("EPCTL_ENCRYPTION_KEY", hex.EncodeToString(key))

	p := NewEnvKeyProvider("EPCTL_ENCRYPTION_KEY")
	got, err := p.GetKey()
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if len(got) != keyLength {
		t.Errorf("key length = %d, want %d", len(got), keyLength)
	}

	t.Setenv("EPCTL_ENCRYPTION_KEY", "deadbeef")
	if _, err := p.GetKey(); err == nil {
		t.Error("short key accepted, want error")
	}
}

func TestPassphraseKeyProvider(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}

	p1 := NewPassphraseKeyProvider("correct horse battery staple", salt)
	k1, err := p1.GetKey()
	if err != nil {
		t.Fatalf("GetKey: %v", err)
	}
	if len(k1) != keyLength {
		t.Errorf("key length = %d, want %d", len(k1), keyLength)
	}

	// Same passphrase and salt derive the same key.
	p2 := NewPassphraseKeyProvider("correct horse battery staple", salt)
	k2, _ := p2.GetKey()
	if string(k1) != string(k2) {
		t.Error("derivation not deterministic")
	}

	// A different passphrase derives a different key.
	p3 := NewPassphraseKeyProvider("different", salt)
	k3, _ := p3.GetKey()
	if string(k1) == string(k3) {
		t.Error("different passphrases derived the same key")
	}

	if _, err := NewPassphraseKeyProvider("", salt).GetKey(); err == nil {
		t.Error("empty passphrase accepted")
	}
	if _, err := NewPassphraseKeyProvider("pw", nil).GetKey(); err == nil {
		t.Error("missing salt accepted")
	}
}
