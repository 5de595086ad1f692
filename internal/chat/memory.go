package chat

import (
	"context"
	"sync"
)

// MemoryPersister keeps the last saved snapshot in memory.
type MemoryPersister struct {
	mu    sync.Mutex
	snap  *Snapshot
	saves int
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (p *MemoryPersister) Load(ctx context.Context) (*Snapshot, error) {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.snap == nil {
		return nil, nil
	}
	s := cloneSnapshot(*p.snap)
	return &s, nil
}

func (p *MemoryPersister) Save(ctx context.Context, s Snapshot) error {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	c := cloneSnapshot(s)
	p.snap = &c
	p.saves++
	return nil
}

// Saves reports how many times Save was called.
func (p *MemoryPersister) Saves() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves
}
