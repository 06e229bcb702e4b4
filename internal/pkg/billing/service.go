package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"github.com/pitlane-app/pitlane/internal/pkg/entitlements"
)

// Service serves payment history and refunds for authenticated users.
type Service struct {
	provider     Provider
	store        EntitlementStore
	sessionLimit int64
	validate     *validator.Validate
}

// NewService creates a billing service. sessionLimit caps how many checkout
// sessions a history read asks the provider for.
func NewService(provider Provider, store EntitlementStore, sessionLimit int64) *Service {
	return &Service{
		provider:     provider,
		store:        store,
		sessionLimit: clampLimit(sessionLimit),
		validate:     validator.New(),
	}
}

// GetEntitlements returns the user's effective plan and garage capacity.
func (s *Service) GetEntitlements(ctx context.Context, userID uint) (entitlements.Summary, error) {
	state, err := s.store.GetState(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entitlements.Effective(nil), nil
		}
		return entitlements.Summary{}, fmt.Errorf("load entitlements for user %d: %w", userID, err)
	}
	return entitlements.Effective(state), nil
}
