// Package patch defines the read-only collaborator boundary for Patch
// (spec.md §3, SPEC_FULL.md §3.1): the patch/user CRUD layer lives
// outside this module, so the discovery engine only ever reads a patch
// through this interface.
package patch

import (
	"context"
	"fmt"
	"sync"

	"briefly/internal/core"
)

// Provider is the external collaborator that owns patches.
type Provider interface {
	GetPatch(ctx context.Context, patchID string) (core.Patch, error)
	GetPatchByHandle(ctx context.Context, handle string) (core.Patch, error)
}

// StaticProvider is an in-memory Provider used for local runs and tests
// where no external patch service is wired in.
type StaticProvider struct {
	mu       sync.RWMutex
	byID     map[string]core.Patch
	byHandle map[string]core.Patch
}

// NewStaticProvider constructs a StaticProvider seeded with patches.
func NewStaticProvider(patches ...core.Patch) *StaticProvider {
	p := &StaticProvider{
		byID:     make(map[string]core.Patch, len(patches)),
		byHandle: make(map[string]core.Patch, len(patches)),
	}
	for _, pt := range patches {
		p.byID[pt.ID] = pt
		p.byHandle[pt.Handle] = pt
	}
	return p
}

// Put adds or replaces a patch.
func (p *StaticProvider) Put(pt core.Patch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[pt.ID] = pt
	p.byHandle[pt.Handle] = pt
}

func (p *StaticProvider) GetPatch(ctx context.Context, patchID string) (core.Patch, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pt, ok := p.byID[patchID]
	if !ok {
		return core.Patch{}, fmt.Errorf("patch %q not found", patchID)
	}
	return pt, nil
}

func (p *StaticProvider) GetPatchByHandle(ctx context.Context, handle string) (core.Patch, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pt, ok := p.byHandle[handle]
	if !ok {
		return core.Patch{}, fmt.Errorf("patch with handle %q not found", handle)
	}
	return pt, nil
}
