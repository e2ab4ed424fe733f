package provider

import (
	"context"

	"github.com/stackform/stackform/internal/ir"
)

// Adapter is the narrow contract the core depends on. Implementations own
// all provider-specific semantics; the core only hands them nodes with
// references already resolved to concrete values.
//
// Create and Update return the concrete attributes of the resource,
// including provider-assigned fields such as generated identifiers. All
// three calls cross a network boundary in real adapters and must honor
// context cancellation.
type Adapter interface {
	Create(ctx context.Context, node *ir.ResourceNode, attrs map[string]any) (map[string]any, error)
	Update(ctx context.Context, node *ir.ResourceNode, attrs map[string]any, prior *ir.ResourceState, diff map[string]*ir.AttributeDiff) (map[string]any, error)
	Delete(ctx context.Context, prior *ir.ResourceState) error
}

// Factory builds a named adapter on first use.
type Factory func() (Adapter, error)
