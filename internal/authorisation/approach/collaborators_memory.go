package approach

import (
	"context"
	"sync"

	"xs2acms/internal/authorisation"
	dErrors "xs2acms/pkg/domain-errors"
)

// StaticValidator is an in-memory CredentialValidator for tests and local
// development. Production deployments plug the bank's verification service
// in instead.
type StaticValidator struct {
	mu         sync.RWMutex
	passwords  map[string]string
	challenges map[string]string
	methods    map[string][]authorisation.ScaMethod
}

func NewStaticValidator() *StaticValidator {
	return &StaticValidator{
		passwords:  make(map[string]string),
		challenges: make(map[string]string),
		methods:    make(map[string][]authorisation.ScaMethod),
	}
}

// Register enrols a PSU with a password, a fixed challenge answer and the
// SCA methods offered after authentication.
func (v *StaticValidator) Register(psuID, password, challenge string, methods ...authorisation.ScaMethod) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.passwords[psuID] = password
	v.challenges[psuID] = challenge
	v.methods[psuID] = methods
}

func (v *StaticValidator) Authenticate(_ context.Context, psuID, password string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if stored, ok := v.passwords[psuID]; !ok || stored != password {
		return dErrors.New(dErrors.CodePsuCredentialsInvalid, "invalid credentials")
	}
	return nil
}

func (v *StaticValidator) ValidateChallenge(_ context.Context, psuID, _, challengeData string) error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if stored, ok := v.challenges[psuID]; !ok || stored != challengeData {
		return dErrors.New(dErrors.CodePsuCredentialsInvalid, "invalid challenge data")
	}
	return nil
}

func (v *StaticValidator) Methods(_ context.Context, psuID string) ([]authorisation.ScaMethod, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.methods[psuID], nil
}

// MemoryChannel records decoupled push hand-offs for tests and local runs.
type MemoryChannel struct {
	mu     sync.Mutex
	pushed []string
}

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{}
}

func (c *MemoryChannel) Push(_ context.Context, auth *authorisation.Authorisation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushed = append(c.pushed, auth.ExternalID)
	return nil
}

// Pushed returns the authorisation ids handed to the channel so far.
func (c *MemoryChannel) Pushed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.pushed))
	copy(out, c.pushed)
	return out
}
