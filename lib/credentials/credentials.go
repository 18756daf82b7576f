// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package credentials

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/gatekeeper/lib/secret"
)

// Bundle holds the decrypted credentials. GeminiAPIKey and AdminSecret
// are nil when the bundle omits them; a nil key disables AI chat and a
// nil secret disables the admin bypass.
type Bundle struct {
	DiscordToken *secret.Buffer
	GeminiAPIKey *secret.Buffer
	AdminSecret  *secret.Buffer
}

type bundleFile struct {
	DiscordToken string `yaml:"discord_token"`
	GeminiAPIKey string `yaml:"gemini_api_key"`
	AdminSecret  string `yaml:"admin_secret"`
}

// Close releases every buffer. Idempotent.
func (b *Bundle) Close() error {
	var errs []error
	for _, buffer := range []*secret.Buffer{b.DiscordToken, b.GeminiAPIKey, b.AdminSecret} {
		if buffer != nil {
			errs = append(errs, buffer.Close())
		}
	}
	return errors.Join(errs...)
}

// Load reads the bundle at path. If identityPath is non-empty the file
// is treated as age ciphertext and decrypted with the identities in
// identityPath; otherwise it is read as plaintext YAML.
func Load(path, identityPath string) (*Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: reading %s: %w", path, err)
	}
	if identityPath == "" {
		defer secret.Zero(raw)
		return Parse(raw)
	}

	identityFile, err := os.Open(identityPath)
	if err != nil {
		return nil, fmt.Errorf("credentials: opening identity %s: %w", identityPath, err)
	}
	defer identityFile.Close()
	identities, err := age.ParseIdentities(identityFile)
	if err != nil {
		return nil, fmt.Errorf("credentials: parsing identity %s: %w", identityPath, err)
	}

	plaintext, err := Open(raw, identities...)
	if err != nil {
		return nil, fmt.Errorf("credentials: %s: %w", path, err)
	}
	defer secret.Zero(plaintext)
	return Parse(plaintext)
}

// Parse decodes a plaintext bundle. It does not zero data.
func Parse(data []byte) (*Bundle, error) {
	var file bundleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("credentials: parsing bundle: %w", err)
	}
	if file.DiscordToken == "" {
		return nil, fmt.Errorf("credentials: discord_token is required")
	}

	bundle := &Bundle{}
	fields := []struct {
		value  string
		target **secret.Buffer
	}{
		{file.DiscordToken, &bundle.DiscordToken},
		{file.GeminiAPIKey, &bundle.GeminiAPIKey},
		{file.AdminSecret, &bundle.AdminSecret},
	}
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		buffer, err := secret.NewFromString(field.value)
		if err != nil {
			bundle.Close()
			return nil, fmt.Errorf("credentials: protecting value: %w", err)
		}
		*field.target = buffer
	}
	return bundle, nil
}

// Seal encrypts a plaintext bundle to the given age recipients
// (age1... public keys).
func Seal(plaintext []byte, recipientKeys []string) ([]byte, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("credentials: at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("credentials: parsing recipient %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}

	var ciphertext bytes.Buffer
	writer, err := age.Encrypt(&ciphertext, recipients...)
	if err != nil {
		return nil, fmt.Errorf("credentials: creating encryptor: %w", err)
	}
	if _, err := writer.Write(plaintext); err != nil {
		return nil, fmt.Errorf("credentials: encrypting: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("credentials: finalizing: %w", err)
	}
	return ciphertext.Bytes(), nil
}

// Open decrypts ciphertext produced by Seal. The caller should
// secret.Zero the result once parsed.
func Open(ciphertext []byte, identities ...age.Identity) ([]byte, error) {
	reader, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		secret.Zero(plaintext)
		return nil, fmt.Errorf("reading plaintext: %w", err)
	}
	return plaintext, nil
}
