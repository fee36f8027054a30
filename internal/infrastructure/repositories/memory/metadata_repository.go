package memory

import (
	"context"
	"sync"

	"spacegate/internal/core/domain"
	"spacegate/internal/core/ports"
)

type metadataKey struct {
	provider   domain.Provider
	externalID string
}

// MemoryMetadataRepository keeps one record per external identity, shared by
// every space that references it.
type MemoryMetadataRepository struct {
	records map[metadataKey]domain.ProviderMetadata
	mu      sync.RWMutex
}

func NewMemoryMetadataRepository() ports.MetadataRepository {
	return &MemoryMetadataRepository{
		records: make(map[metadataKey]domain.ProviderMetadata),
	}
}

func (r *MemoryMetadataRepository) Get(ctx context.Context, provider domain.Provider, externalID string) (*domain.ProviderMetadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[metadataKey{provider, externalID}]
	if !ok {
		return nil, domain.ErrMetadataNotFound
	}
	return &rec, nil
}

func (r *MemoryMetadataRepository) Upsert(ctx context.Context, record *domain.ProviderMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[metadataKey{record.Provider, record.ExternalID}] = *record
	return nil
}
