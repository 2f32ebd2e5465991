package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"strings"

	dErrors "xs2acms/pkg/domain-errors"
)

// separator joins the segments of a protected identifier. It is part of the
// external identifier format and must never change.
const separator = "_=_"

// DecryptedID is the recovered content of a protected identifier.
type DecryptedID struct {
	InternalID string

	// key is the per-resource encryption key; it never leaves this package.
	key []byte

	dataProviderID string
}

// IdentifierService translates between internal resource ids and the opaque
// identifiers exposed to TPPs, and protects consent-data blobs with the
// per-resource key embedded in the identifier.
//
// Identifier layout:
//
//	base64( internalId _=_ key _=_ dataProviderId ) _=_ idProviderId
//
// The trailing provider id is clear text so decrypt can pick the algorithm
// version the identifier was minted under; the key itself is never exposed.
type IdentifierService struct {
	registry       *Registry
	serverKey      []byte
	idProviderID   string
	dataProviderID string
}

// NewIdentifierService wires the registry and the default provider ids for
// newly minted identifiers. serverKey protects the identifier envelope. Both
// provider ids must resolve in the registry; a misconfigured id fails here
// rather than on the first mint.
func NewIdentifierService(registry *Registry, serverKey []byte, idProviderID, dataProviderID string) (*IdentifierService, error) {
	for _, id := range []string{idProviderID, dataProviderID} {
		if _, ok := registry.ByID(id); !ok {
			return nil, dErrors.New(dErrors.CodeAlgorithmUnknown, "crypto provider "+id+" is not registered")
		}
	}
	return &IdentifierService{
		registry:       registry,
		serverKey:      serverKey,
		idProviderID:   idProviderID,
		dataProviderID: dataProviderID,
	}, nil
}

// EncryptID mints the external identifier for an internal resource id with
// a fresh random per-resource key.
func (s *IdentifierService) EncryptID(internalID string) (string, bool) {
	if internalID == "" || strings.Contains(internalID, separator) {
		return "", false
	}
	provider, ok := s.registry.ByID(s.idProviderID)
	if !ok {
		return "", false
	}

	key := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", false
	}
	encodedKey := base64.RawURLEncoding.EncodeToString(key)

	composite := internalID + separator + encodedKey + separator + s.dataProviderID
	sealed, ok := provider.Encrypt([]byte(composite), s.serverKey)
	if !ok {
		return "", false
	}
	return base64.RawURLEncoding.EncodeToString(sealed) + separator + s.idProviderID, true
}

// DecryptID recovers the internal id from an external identifier. It fails
// closed on an unknown provider id, a corrupt envelope or a wrong key, and
// never reports which step failed.
func (s *IdentifierService) DecryptID(externalID string) (DecryptedID, bool) {
	idx := strings.LastIndex(externalID, separator)
	if idx < 0 {
		return DecryptedID{}, false
	}
	providerID := externalID[idx+len(separator):]
	provider, ok := s.registry.ByID(providerID)
	if !ok {
		return DecryptedID{}, false
	}

	sealed, err := base64.RawURLEncoding.DecodeString(externalID[:idx])
	if err != nil {
		return DecryptedID{}, false
	}
	composite, ok := provider.Decrypt(sealed, s.serverKey)
	if !ok {
		return DecryptedID{}, false
	}

	parts := strings.Split(string(composite), separator)
	if len(parts) != 3 {
		return DecryptedID{}, false
	}
	key, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return DecryptedID{}, false
	}
	return DecryptedID{
		InternalID:     parts[0],
		key:            key,
		dataProviderID: parts[2],
	}, true
}

// EncryptConsentData seals a consent payload with the per-resource key and
// data provider recovered from the identifier. Identifier and payload
// confidentiality rotate independently because the two provider ids are
// separate segments.
func (s *IdentifierService) EncryptConsentData(data []byte, externalID string) ([]byte, bool) {
	decrypted, ok := s.DecryptID(externalID)
	if !ok {
		return nil, false
	}
	provider, ok := s.registry.ByID(decrypted.dataProviderID)
	if !ok {
		return nil, false
	}
	return provider.Encrypt(data, decrypted.key)
}

// DecryptConsentData opens a consent payload sealed by EncryptConsentData.
func (s *IdentifierService) DecryptConsentData(blob []byte, externalID string) ([]byte, bool) {
	decrypted, ok := s.DecryptID(externalID)
	if !ok {
		return nil, false
	}
	provider, ok := s.registry.ByID(decrypted.dataProviderID)
	if !ok {
		return nil, false
	}
	return provider.Decrypt(blob, decrypted.key)
}
