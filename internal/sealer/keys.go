package sealer

import (
	"context"
	"encoding/base64"
	"strings"

	dErrors "medshare/pkg/domain-errors"
)

// StaticKeyProvider serves a single key held in memory.
type StaticKeyProvider struct {
	key []byte
}

// NewStaticKeyProvider copies key into a provider.
func NewStaticKeyProvider(key []byte) *StaticKeyProvider {
	return &StaticKeyProvider{key: append([]byte(nil), key...)}
}

// KeyFromBase64 decodes a base64 key from configuration.
// An empty value yields a provider that reports CodeMissingKey on use.
func KeyFromBase64(encoded string) (*StaticKeyProvider, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return &StaticKeyProvider{}, nil
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidKeyLength, "encryption key is not valid base64")
	}
	return &StaticKeyProvider{key: key}, nil
}

// CurrentKey returns a copy of the configured key.
func (p *StaticKeyProvider) CurrentKey(_ context.Context) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return append([]byte(nil), p.key...), nil
}
