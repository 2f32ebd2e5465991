package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "xs2acms/pkg/domain-errors"
)

const (
	testIDProvider   = "gQ8wkMeo93"
	testDataProvider = "JcHZwvJMuc"
)

func newTestService(t *testing.T) *IdentifierService {
	t.Helper()
	registry := NewRegistry(
		NewAesGcmProvider(testIDProvider, 256, 1024),
		NewAesGcmProvider(testDataProvider, 256, 1024),
	)
	svc, err := NewIdentifierService(registry, []byte("server-secret"), testIDProvider, testDataProvider)
	require.NoError(t, err)
	return svc
}

func TestNewIdentifierServiceRejectsUnknownProvider(t *testing.T) {
	registry := NewRegistry(NewAesGcmProvider(testIDProvider, 256, 1024))

	_, err := NewIdentifierService(registry, []byte("server-secret"), testIDProvider, "missingProv")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeAlgorithmUnknown))
}

func TestIdentifierRoundTrip(t *testing.T) {
	svc := newTestService(t)

	external, ok := svc.EncryptID("f2c694b1-7c7a-4c54-9a52-7a5012c1e2d0")
	require.True(t, ok)
	assert.True(t, strings.HasSuffix(external, separator+testIDProvider))

	decrypted, ok := svc.DecryptID(external)
	require.True(t, ok)
	assert.Equal(t, "f2c694b1-7c7a-4c54-9a52-7a5012c1e2d0", decrypted.InternalID)
	assert.Equal(t, testDataProvider, decrypted.dataProviderID)
	assert.NotEmpty(t, decrypted.key)
}

func TestIdentifiersAreUnlinkable(t *testing.T) {
	svc := newTestService(t)

	first, ok := svc.EncryptID("same-internal-id")
	require.True(t, ok)
	second, ok := svc.EncryptID("same-internal-id")
	require.True(t, ok)

	// Fresh salt, nonce and resource key per mint.
	assert.NotEqual(t, first, second)
}

func TestDecryptIDFailsClosed(t *testing.T) {
	svc := newTestService(t)

	external, ok := svc.EncryptID("internal")
	require.True(t, ok)

	for name, id := range map[string]string{
		"no separator":     "not-an-identifier",
		"unknown provider": strings.TrimSuffix(external, testIDProvider) + "unknownProv",
		"corrupt envelope": "!!!not-base64!!!" + separator + testIDProvider,
		"tampered body":    "QUFBQUFBQUFBQUFBQUFBQQ" + separator + testIDProvider,
	} {
		t.Run(name, func(t *testing.T) {
			_, ok := svc.DecryptID(id)
			assert.False(t, ok)
		})
	}
}

func TestDecryptIDWrongServerKey(t *testing.T) {
	svc := newTestService(t)
	external, ok := svc.EncryptID("internal")
	require.True(t, ok)

	registry := NewRegistry(
		NewAesGcmProvider(testIDProvider, 256, 1024),
		NewAesGcmProvider(testDataProvider, 256, 1024),
	)
	other, err := NewIdentifierService(registry, []byte("different-secret"), testIDProvider, testDataProvider)
	require.NoError(t, err)

	_, ok = other.DecryptID(external)
	assert.False(t, ok)
}

func TestEncryptIDRejectsReservedSequence(t *testing.T) {
	svc := newTestService(t)

	_, ok := svc.EncryptID("abc" + separator + "def")
	assert.False(t, ok)

	_, ok = svc.EncryptID("")
	assert.False(t, ok)
}

func TestConsentDataRoundTrip(t *testing.T) {
	svc := newTestService(t)
	external, ok := svc.EncryptID("consent-1")
	require.True(t, ok)

	payload := []byte(`{"access":{"accounts":[]}}`)
	sealed, ok := svc.EncryptConsentData(payload, external)
	require.True(t, ok)
	assert.NotEqual(t, payload, sealed)

	opened, ok := svc.DecryptConsentData(sealed, external)
	require.True(t, ok)
	assert.Equal(t, payload, opened)
}

func TestConsentDataBoundToIdentifier(t *testing.T) {
	svc := newTestService(t)

	first, ok := svc.EncryptID("consent-1")
	require.True(t, ok)
	second, ok := svc.EncryptID("consent-2")
	require.True(t, ok)

	sealed, ok := svc.EncryptConsentData([]byte("payload"), first)
	require.True(t, ok)

	// The per-resource key differs, so another identifier cannot open it.
	_, ok = svc.DecryptConsentData(sealed, second)
	assert.False(t, ok)
}

func TestProviderRoundTripAndTamper(t *testing.T) {
	provider := NewAesGcmProvider(testDataProvider, 256, 1024)

	sealed, ok := provider.Encrypt([]byte("secret"), []byte("password"))
	require.True(t, ok)

	opened, ok := provider.Decrypt(sealed, []byte("password"))
	require.True(t, ok)
	assert.Equal(t, []byte("secret"), opened)

	_, ok = provider.Decrypt(sealed, []byte("wrong"))
	assert.False(t, ok)

	sealed[len(sealed)-1] ^= 0xff
	_, ok = provider.Decrypt(sealed, []byte("password"))
	assert.False(t, ok)

	_, ok = provider.Decrypt([]byte("short"), []byte("password"))
	assert.False(t, ok)
}

func TestRegistryByID(t *testing.T) {
	registry := NewRegistry(NewAesGcmProvider(testIDProvider, 256, 1024))

	_, ok := registry.ByID(testIDProvider)
	assert.True(t, ok)

	_, ok = registry.ByID("missing")
	assert.False(t, ok)
}
