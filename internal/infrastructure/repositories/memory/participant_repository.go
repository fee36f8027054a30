package memory

import (
	"context"
	"sync"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
)

type MemoryParticipantRepository struct {
	participants map[domain.SpaceID]map[domain.UserID]domain.Participant
	mu           sync.RWMutex
}

func NewMemoryParticipantRepository() ports.ParticipantRepository {
	return &MemoryParticipantRepository{
		participants: make(map[domain.SpaceID]map[domain.UserID]domain.Participant),
	}
}

// Insert checks uniqueness and capacity under one lock, matching the atomic
// script the redis repository runs.
func (r *MemoryParticipantRepository) Insert(ctx context.Context, p *domain.Participant, maxParticipants int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.participants[p.SpaceID]
	if _, exists := members[p.UserID]; exists {
		return domain.ErrParticipantExists
	}
	if maxParticipants > 0 && len(members) >= maxParticipants {
		return domain.ErrCapacityReached
	}
	if members == nil {
		members = make(map[domain.UserID]domain.Participant)
		r.participants[p.SpaceID] = members
	}
	members[p.UserID] = *p
	return nil
}

func (r *MemoryParticipantRepository) Delete(ctx context.Context, spaceID domain.SpaceID, userID domain.UserID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.participants[spaceID]
	if _, ok := members[userID]; !ok {
		return false, nil
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(r.participants, spaceID)
	}
	return true, nil
}

func (r *MemoryParticipantRepository) Exists(ctx context.Context, spaceID domain.SpaceID, userID domain.UserID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.participants[spaceID][userID]
	return ok, nil
}

func (r *MemoryParticipantRepository) Count(ctx context.Context, spaceID domain.SpaceID) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.participants[spaceID]), nil
}
