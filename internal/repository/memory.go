package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/saasplatform/backend/internal/domain"
)

// MemoryRepository keeps subscriptions in process memory.
// Callers receive copies, so mutating a returned subscription has no effect until Update.
type MemoryRepository struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]domain.Subscription
	now    func() time.Time
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		nextID: 1,
		subs:   make(map[int]domain.Subscription),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	sub.ID = r.nextID
	sub.CreatedAt = now
	sub.UpdatedAt = now
	r.nextID++
	r.subs[sub.ID] = clone(*sub)
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id int) (*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sub, ok := r.subs[id]
	if !ok {
		return nil, nil
	}
	c := clone(sub)
	return &c, nil
}

func (r *MemoryRepository) List(ctx context.Context) ([]*domain.Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := make([]*domain.Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		c := clone(sub)
		subs = append(subs, &c)
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].CreatedAt.Equal(subs[j].CreatedAt) {
			return subs[i].CreatedAt.After(subs[j].CreatedAt)
		}
		return subs[i].ID > subs[j].ID
	})
	return subs, nil
}

func (r *MemoryRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.subs[sub.ID]
	if !ok {
		return domain.ErrNotFound(fmt.Sprintf("subscription %d not found", sub.ID))
	}
	sub.CreatedAt = existing.CreatedAt
	sub.UpdatedAt = r.now()
	r.subs[sub.ID] = clone(*sub)
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subs[id]; !ok {
		return domain.ErrNotFound(fmt.Sprintf("subscription %d not found", id))
	}
	delete(r.subs, id)
	return nil
}

func clone(sub domain.Subscription) domain.Subscription {
	if sub.ResourceGroupName != nil {
		v := *sub.ResourceGroupName
		sub.ResourceGroupName = &v
	}
	if sub.DeploymentURL != nil {
		v := *sub.DeploymentURL
		sub.DeploymentURL = &v
	}
	return sub
}
