package services

import (
	"context"
	"fmt"
	"time"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
	"spacegate/pkg/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SpaceService is the thin setup surface around the gatekeeper: creating a
// space, moving it between states and attaching rules.
type SpaceService interface {
	CreateSpace(ctx context.Context, owner domain.UserID, name string, maxParticipants int) (*domain.Space, error)
	GetSpace(ctx context.Context, id domain.SpaceID) (*domain.Space, error)
	UpdateStatus(ctx context.Context, id domain.SpaceID, status domain.SpaceStatus) (*domain.Space, error)
	UpdateGatekeeper(ctx context.Context, id domain.SpaceID, rules *domain.GatekeeperRuleSet) (*domain.Space, error)
}

type spaceService struct {
	repo   ports.SpaceRepository
	now    func() time.Time
	logger *zap.SugaredLogger
}

func NewSpaceService(repo ports.SpaceRepository, logger *zap.SugaredLogger) SpaceService {
	return &spaceService{
		repo:   repo,
		now:    time.Now,
		logger: logger,
	}
}

func (s *spaceService) CreateSpace(ctx context.Context, owner domain.UserID, name string, maxParticipants int) (*domain.Space, error) {
	if owner == "" {
		return nil, domain.ErrNotAuthenticated
	}
	if err := validation.ValidateSpaceName(name); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSpace, err)
	}
	if err := validation.ValidateMaxParticipants(maxParticipants); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidSpace, err)
	}

	space := &domain.Space{
		ID:              domain.SpaceID(generateSpaceID()),
		Name:            name,
		OwnerID:         owner,
		Status:          domain.SpaceStatusDraft,
		CreatedAt:       s.now(),
		MaxParticipants: maxParticipants,
	}

	if err := s.repo.Create(ctx, space); err != nil {
		return nil, fmt.Errorf("failed to create space: %w", err)
	}

	s.logger.Infow("space created", "space_id", space.ID, "owner_id", owner)
	return space, nil
}

func (s *spaceService) GetSpace(ctx context.Context, id domain.SpaceID) (*domain.Space, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *spaceService) UpdateStatus(ctx context.Context, id domain.SpaceID, status domain.SpaceStatus) (*domain.Space, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidSpace, status)
	}
	space, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	space.Status = status
	if err := s.repo.Update(ctx, space); err != nil {
		return nil, fmt.Errorf("failed to update space: %w", err)
	}
	s.logger.Infow("space status changed", "space_id", id, "status", status)
	return space, nil
}

// UpdateGatekeeper replaces the rule set. Malformed rules are rejected here so
// they never reach the join flow through this path.
func (s *spaceService) UpdateGatekeeper(ctx context.Context, id domain.SpaceID, rules *domain.GatekeeperRuleSet) (*domain.Space, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	space, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rules.IsEmpty() {
		rules = nil
	}
	space.Gatekeeper = rules
	if err := s.repo.Update(ctx, space); err != nil {
		return nil, fmt.Errorf("failed to update space: %w", err)
	}
	s.logger.Infow("gatekeeper updated", "space_id", id, "rules", rules != nil)
	return space, nil
}

func generateSpaceID() string {
	return uuid.New().String()
}
