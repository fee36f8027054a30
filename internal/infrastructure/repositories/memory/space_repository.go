package memory

import (
	"context"
	"fmt"
	"sync"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
)

type MemorySpaceRepository struct {
	spaces map[domain.SpaceID]*domain.Space
	mu     sync.RWMutex
}

func NewMemorySpaceRepository() ports.SpaceRepository {
	return &MemorySpaceRepository{
		spaces: make(map[domain.SpaceID]*domain.Space),
	}
}

func (r *MemorySpaceRepository) Create(ctx context.Context, space *domain.Space) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.spaces[space.ID]; exists {
		return fmt.Errorf("space already exists: %s", space.ID)
	}

	r.spaces[space.ID] = cloneSpace(space)
	return nil
}

func (r *MemorySpaceRepository) GetByID(ctx context.Context, id domain.SpaceID) (*domain.Space, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	space, exists := r.spaces[id]
	if !exists {
		return nil, domain.ErrSpaceNotFound
	}

	return cloneSpace(space), nil
}

func (r *MemorySpaceRepository) Update(ctx context.Context, space *domain.Space) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.spaces[space.ID]; !exists {
		return domain.ErrSpaceNotFound
	}

	r.spaces[space.ID] = cloneSpace(space)
	return nil
}

// cloneSpace copies the rule set too, so callers can't mutate stored state.
func cloneSpace(s *domain.Space) *domain.Space {
	out := *s
	if s.Gatekeeper != nil {
		g := *s.Gatekeeper
		if g.Email != nil {
			e := domain.EmailRule{
				Allowed: append([]string(nil), g.Email.Allowed...),
				Blocked: append([]string(nil), g.Email.Blocked...),
			}
			g.Email = &e
		}
		if g.YouTube != nil {
			y := *g.YouTube
			g.YouTube = &y
		}
		if g.Twitch != nil {
			tw := *g.Twitch
			g.Twitch = &tw
		}
		out.Gatekeeper = &g
	}
	return &out
}
