// Package null implements an inert provider adapter. Resources exist only
// in state; applying them performs no external work. Useful for wiring
// ordering between other resources and for exercising the engine.
package null

import (
	"context"
	"fmt"

	"github.com/stackform/stackform/internal/ir"
	"github.com/stackform/stackform/internal/provider"
)

type Provider struct{}

func New() (provider.Adapter, error) {
	return &Provider{}, nil
}

func (p *Provider) Create(ctx context.Context, node *ir.ResourceNode, attrs map[string]any) (map[string]any, error) {
	outputs := map[string]any{
		"id": fmt.Sprintf("null-%s", node.Name),
	}
	for k, v := range attrs {
		outputs[k] = v
	}
	return outputs, nil
}

func (p *Provider) Update(ctx context.Context, node *ir.ResourceNode, attrs map[string]any, prior *ir.ResourceState, diff map[string]*ir.AttributeDiff) (map[string]any, error) {
	return p.Create(ctx, node, attrs)
}

func (p *Provider) Delete(ctx context.Context, prior *ir.ResourceState) error {
	return nil
}
