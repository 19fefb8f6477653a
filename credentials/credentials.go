// Package credentials provides per-client API key storage for epctl.
// Keys live in ~/.epctl/credentials.yaml, encrypted at rest with AES-GCM.
//
// Encryption Key Storage:
// The encryption key is stored securely using the system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// For CI/testing environments, set EPCTL_ENCRYPTION_KEY to a 64-character
// hex string (32 bytes).
package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	eperrors "github.com/emailpilot/epctl/pkg/errors"
)

// Credential storage constants.
const (
	DefaultCredentialsDir  = ".epctl"
	DefaultCredentialsFile = "credentials.yaml"
)

// Common errors.
var (
	// ErrInvalidCredentials is returned when stored credentials are malformed.
	ErrInvalidCredentials = errors.New("invalid credentials format")
	// ErrEncryptionFailed is returned when encryption/decryption fails.
	ErrEncryptionFailed = errors.New("encryption failed")
)

// ClientKey holds one client's stored API key.
type ClientKey struct {
	// APIKey is the stored key (encrypted at rest).
	APIKey string `yaml:"api_key"`
	// Label is an optional free-form note ("production", "sandbox").
	Label string `yaml:"label,omitempty"`
	// LastUpdated is when the key was last written.
	LastUpdated time.Time `yaml:"last_updated"`
}

// credentialsFile is the on-disk document shape.
type credentialsFile struct {
	Version int                  `yaml:"version"`
	Clients map[string]ClientKey `yaml:"clients"`
}

// Store manages per-client API keys. It implements the gateway's key
// resolver interface.
type Store struct {
	credentialsDir string
	encryptionKey  []byte
	keyProvider    KeyProvider
}

// NewStore creates a credential store with default settings. It uses the
// system keyring (macOS Keychain, Windows Credential Manager, or Linux
// Secret Service) to hold the encryption key.
func NewStore() (*Store, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return nil, fmt.Errorf("getting credentials directory: %w", err)
	}

	keyProvider, err := GetDefaultKeyProvider()
	if err != nil {
		return nil, fmt.Errorf("initializing key provider: %w", err)
	}
	return NewStoreAt(dir, keyProvider)
}

// NewStoreAt creates a store rooted at dir with a custom key provider.
// Primarily used for testing.
func NewStoreAt(dir string, keyProvider KeyProvider) (*Store, error) {
	key, err := keyProvider.GetKey()
	if err != nil {
		return nil, fmt.Errorf("getting encryption key: %w", err)
	}

	return &Store{
		credentialsDir: dir,
		encryptionKey:  key,
		keyProvider:    keyProvider,
	}, nil
}

// CredentialsDir returns the credentials directory path.
// Uses $EPCTL_CONFIG_DIR if set, otherwise ~/.epctl
func CredentialsDir() (string, error) {
	if dir := os.Getenv("EPCTL_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, DefaultCredentialsDir), nil
}

// CredentialsPath returns the full path to the credentials file.
func CredentialsPath() (string, error) {
	dir, err := CredentialsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultCredentialsFile), nil
}

// GetClientKey returns the API key for a client. EPCTL_API_KEY overrides
// the stored key for every client, which keeps CI and one-off runs simple.
// A missing key wraps eperrors.ErrNoAPIKey.
func (s *Store) GetClientKey(clientID string) (string, error) {
	if key := os.Getenv("EPCTL_API_KEY"); key != "" {
		return key, nil
	}

	doc, err := s.load()
	if err != nil {
		return "", err
	}

	entry, ok := doc.Clients[clientID]
	if !ok {
		return "", fmt.Errorf("%w: client %q", eperrors.ErrNoAPIKey, clientID)
	}
	return s.decrypt(entry.APIKey)
}

// SetClientKey stores (or replaces) a client's API key.
func (s *Store) SetClientKey(clientID, apiKey, label string) error {
	if clientID == "" {
		return fmt.Errorf("%w: client ID is required", ErrInvalidCredentials)
	}
	if apiKey == "" {
		return fmt.Errorf("%w: API key is required", ErrInvalidCredentials)
	}

	doc, err := s.load()
	if err != nil && !errors.Is(err, eperrors.ErrNoAPIKey) {
		return err
	}
	if doc == nil {
		doc = &credentialsFile{Version: 1, Clients: map[string]ClientKey{}}
	}

	encrypted, err := s.encrypt(apiKey)
	if err != nil {
		return fmt.Errorf("encrypting API key: %w", err)
	}
	doc.Clients[clientID] = ClientKey{
		APIKey:      encrypted,
		Label:       label,
		LastUpdated: time.Now(),
	}
	return s.save(doc)
}

// DeleteClientKey removes a client's stored key. Deleting an absent key is
// not an error.
func (s *Store) DeleteClientKey(clientID string) error {
	doc, err := s.load()
	if err != nil {
		if errors.Is(err, eperrors.ErrNoAPIKey) {
			return nil
		}
		return err
	}
	delete(doc.Clients, clientID)
	return s.save(doc)
}

// ListClients returns the stored client IDs with their labels and update
// times, sorted by client ID. Keys themselves are not returned.
func (s *Store) ListClients() (map[string]ClientKey, []string, error) {
	doc, err := s.load()
	if err != nil {
		if errors.Is(err, eperrors.ErrNoAPIKey) {
			return map[string]ClientKey{}, nil, nil
		}
		return nil, nil, err
	}

	entries := make(map[string]ClientKey, len(doc.Clients))
	ids := make([]string, 0, len(doc.Clients))
	for id, entry := range doc.Clients {
		entry.APIKey = ""
		entries[id] = entry
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return entries, ids, nil
}

func (s *Store) load() (*credentialsFile, error) {
	credPath := filepath.Join(s.credentialsDir, DefaultCredentialsFile)

	data, err := os.ReadFile(credPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: no credentials stored", eperrors.ErrNoAPIKey)
		}
		return nil, fmt.Errorf("reading credentials file: %w", err)
	}

	var doc credentialsFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if doc.Clients == nil {
		doc.Clients = map[string]ClientKey{}
	}
	return &doc, nil
}

func (s *Store) save(doc *credentialsFile) error {
	if err := os.MkdirAll(s.credentialsDir, 0700); err != nil {
		return fmt.Errorf("creating credentials directory: %w", err)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}

	credPath := filepath.Join(s.credentialsDir, DefaultCredentialsFile)
	if err := os.WriteFile(credPath, data, 0600); err != nil {
		return fmt.Errorf("writing credentials file: %w", err)
	}
	return nil
}

// encrypt encrypts a string using AES-GCM.
func (s *Store) encrypt(plaintext string) (string, error) {
	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", ErrEncryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: creating GCM: %v", ErrEncryptionFailed, err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("%w: generating nonce: %v", ErrEncryptionFailed, err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts an AES-GCM encrypted string.
func (s *Store) decrypt(ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: decoding base64: %v", ErrEncryptionFailed, err)
	}

	block, err := aes.NewCipher(s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("%w: creating cipher: %v", ErrEncryptionFailed, err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("%w: creating GCM: %v", ErrEncryptionFailed, err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrEncryptionFailed)
	}

	nonce, ciphertextBytes := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", fmt.Errorf("%w: decryption failed: %v", ErrEncryptionFailed, err)
	}
	return string(plaintext), nil
}

// MaskAPIKey returns a masked API key for display.
func MaskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return strings.Repeat("*", len(apiKey))
	}
	return apiKey[:4] + strings.Repeat("*", 8) + "..." + apiKey[len(apiKey)-4:]
}
