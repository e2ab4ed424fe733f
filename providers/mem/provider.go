// Package mem implements an in-memory provider adapter that behaves like a
// small fake cloud: created objects get generated identifiers and live in
// a map for the life of the process. It backs the engine's integration
// tests and the examples.
package mem

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/stackform/stackform/internal/ir"
	"github.com/stackform/stackform/internal/provider"
)

type object struct {
	id    string
	attrs map[string]any
}

type Provider struct {
	mu      sync.Mutex
	objects map[string]*object // keyed by id
}

func New() (provider.Adapter, error) {
	return &Provider{objects: make(map[string]*object)}, nil
}

func (p *Provider) Create(ctx context.Context, node *ir.ResourceNode, attrs map[string]any) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := uuid.NewString()

	p.mu.Lock()
	p.objects[id] = &object{id: id, attrs: attrs}
	p.mu.Unlock()

	return concreteAttrs(id, attrs), nil
}

func (p *Provider) Update(ctx context.Context, node *ir.ResourceNode, attrs map[string]any, prior *ir.ResourceState, diff map[string]*ir.AttributeDiff) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := priorID(prior)

	p.mu.Lock()
	defer p.mu.Unlock()
	obj, ok := p.objects[id]
	if !ok {
		// Updating an object this process never created still succeeds:
		// the fake cloud adopts it under its recorded identifier.
		obj = &object{id: id}
		p.objects[id] = obj
	}
	obj.attrs = attrs
	return concreteAttrs(id, attrs), nil
}

func (p *Provider) Delete(ctx context.Context, prior *ir.ResourceState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if prior.Outputs != nil {
		if id, ok := prior.Outputs["id"].(string); ok {
			delete(p.objects, id)
		}
	}
	return nil
}

// Len reports how many objects the fake cloud currently holds.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.objects)
}

func concreteAttrs(id string, attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs)+1)
	for k, v := range attrs {
		out[k] = v
	}
	out["id"] = id
	return out
}

func priorID(prior *ir.ResourceState) string {
	if prior != nil && prior.Outputs != nil {
		if id, ok := prior.Outputs["id"].(string); ok {
			return id
		}
	}
	return fmt.Sprintf("mem-%s", uuid.NewString())
}
