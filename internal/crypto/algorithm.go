// Package crypto protects resource identifiers and consent payloads with
// versioned, independently rotatable algorithms. Providers are registered
// once at process start; identifiers embed the provider id of the algorithm
// that minted them, so rotation never orphans historical identifiers.
package crypto

// Algorithm describes one registered crypto algorithm version. Immutable
// once created; lookup is by ExternalID only, never by name.
type Algorithm struct {
	// ExternalID is the opaque version token embedded in protected
	// identifiers.
	ExternalID string

	Name           string
	KeyLengthBits  int
	HashIterations int
	KeyDerivation  string
}

// Registry maps provider ids to providers. Built once at startup and passed
// explicitly into the identifier service; there is no ambient global lookup.
type Registry struct {
	providers map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	byID := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byID[p.Algorithm().ExternalID] = p
	}
	return &Registry{providers: byID}
}

// ByID looks up the provider that minted an identifier. Unknown ids fail
// closed.
func (r *Registry) ByID(externalID string) (Provider, bool) {
	p, ok := r.providers[externalID]
	return p, ok
}
