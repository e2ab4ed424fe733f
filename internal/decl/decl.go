// Package decl loads HCL declaration files into the core resource model.
// It is a front-end only: expressions referring to other resources become
// typed Reference placeholders, never resolved values. The core engine
// works purely on the ir types and does not know this syntax exists.
package decl

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/stackform/stackform/internal/ir"
)

// DefaultProvider is assumed when a resource block has no provider
// attribute.
const DefaultProvider = "null"

// LoadDir parses every .hcl file in dir (sorted by name) into one
// declaration set.
func LoadDir(dir string) (*ir.Config, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.hcl"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no .hcl files found in %s", dir)
	}
	sort.Strings(matches)
	return LoadFiles(matches...)
}

// LoadFiles parses the given HCL files, in order, into one declaration
// set. Identity uniqueness is enforced across all files.
func LoadFiles(paths ...string) (*ir.Config, error) {
	cfg := &ir.Config{Nodes: ir.NewNodeSet()}
	parser := hclparse.NewParser()

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("failed to read declaration %s: %w", path, err)
		}
		file, diags := parser.ParseHCLFile(path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse %s: %s", path, diags.Error())
		}
		body, ok := file.Body.(*hclsyntax.Body)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected body type", path)
		}
		if err := loadBody(cfg, body); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func loadBody(cfg *ir.Config, body *hclsyntax.Body) error {
	for name := range body.Attributes {
		return fmt.Errorf("unexpected top-level attribute %q", name)
	}
	for _, block := range body.Blocks {
		switch block.Type {
		case "resource":
			if len(block.Labels) != 2 {
				return fmt.Errorf("resource block at %s needs two labels: kind and name", block.DefRange().String())
			}
			node, err := decodeResource(block.Labels[0], block.Labels[1], block.Body)
			if err != nil {
				return err
			}
			if err := cfg.Nodes.Define(node); err != nil {
				return err
			}
		case "output":
			if len(block.Labels) != 1 {
				return fmt.Errorf("output block at %s needs one label", block.DefRange().String())
			}
			if err := decodeOutput(cfg, block.Labels[0], block.Body); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported block type %q at %s", block.Type, block.DefRange().String())
		}
	}
	return nil
}

func decodeResource(kind, name string, body *hclsyntax.Body) (*ir.ResourceNode, error) {
	node := &ir.ResourceNode{
		Kind:       kind,
		Name:       name,
		Provider:   DefaultProvider,
		Attributes: make(map[string]any),
	}

	for _, attr := range sortedAttributes(body) {
		switch attr.Name {
		case "provider":
			val, err := literalString(attr.Expr)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: provider: %w", kind, name, err)
			}
			node.Provider = val
		case "depends_on":
			addrs, err := dependsOnAddrs(attr.Expr)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: depends_on: %w", kind, name, err)
			}
			node.DependsOn = addrs
		default:
			val, err := exprToValue(attr.Expr)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: attribute %q: %w", kind, name, attr.Name, err)
			}
			node.Attributes[attr.Name] = val
		}
	}

	for _, block := range body.Blocks {
		if block.Type != "lifecycle" {
			return nil, fmt.Errorf("%s.%s: unsupported nested block %q", kind, name, block.Type)
		}
		lc, err := decodeLifecycle(block.Body)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: lifecycle: %w", kind, name, err)
		}
		node.Lifecycle = lc
	}
	return node, nil
}

func decodeLifecycle(body *hclsyntax.Body) (*ir.Lifecycle, error) {
	lc := &ir.Lifecycle{}
	for _, attr := range sortedAttributes(body) {
		val, err := exprToValue(attr.Expr)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", attr.Name, err)
		}
		switch attr.Name {
		case "prevent_destroy":
			b, ok := val.(bool)
			if !ok {
				return nil, fmt.Errorf("prevent_destroy must be a bool")
			}
			lc.PreventDestroy = b
		case "ignore_changes":
			list, ok := val.([]any)
			if !ok {
				return nil, fmt.Errorf("ignore_changes must be a list of attribute names")
			}
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("ignore_changes entries must be strings")
				}
				lc.IgnoreChanges = append(lc.IgnoreChanges, s)
			}
		default:
			return nil, fmt.Errorf("unsupported lifecycle attribute %q", attr.Name)
		}
	}
	return lc, nil
}

func decodeOutput(cfg *ir.Config, name string, body *hclsyntax.Body) error {
	attr, ok := body.Attributes["value"]
	if !ok {
		return fmt.Errorf("output %q has no value attribute", name)
	}
	val, err := exprToValue(attr.Expr)
	if err != nil {
		return fmt.Errorf("output %q: %w", name, err)
	}
	if cfg.Outputs == nil {
		cfg.Outputs = make(map[string]any)
	}
	if _, exists := cfg.Outputs[name]; exists {
		return fmt.Errorf("output %q declared twice", name)
	}
	cfg.Outputs[name] = val
	return nil
}

// sortedAttributes returns a body's attributes ordered by source position,
// so diagnostics and declaration handling stay deterministic.
func sortedAttributes(body *hclsyntax.Body) []*hclsyntax.Attribute {
	attrs := make([]*hclsyntax.Attribute, 0, len(body.Attributes))
	for _, attr := range body.Attributes {
		attrs = append(attrs, attr)
	}
	sort.Slice(attrs, func(i, j int) bool {
		return attrs[i].SrcRange.Start.Byte < attrs[j].SrcRange.Start.Byte
	})
	return attrs
}

// exprToValue converts an HCL expression into a core attribute value. A
// bare kind.name.field traversal becomes a Reference placeholder; lists
// and objects are walked recursively so references may nest anywhere.
func exprToValue(expr hclsyntax.Expression) (any, error) {
	switch e := expr.(type) {
	case *hclsyntax.ScopeTraversalExpr:
		return traversalToReference(e.Traversal)
	case *hclsyntax.TupleConsExpr:
		list := make([]any, 0, len(e.Exprs))
		for _, item := range e.Exprs {
			val, err := exprToValue(item)
			if err != nil {
				return nil, err
			}
			list = append(list, val)
		}
		return list, nil
	case *hclsyntax.ObjectConsExpr:
		obj := make(map[string]any, len(e.Items))
		for _, item := range e.Items {
			key, err := objectKey(item.KeyExpr)
			if err != nil {
				return nil, err
			}
			val, err := exprToValue(item.ValueExpr)
			if err != nil {
				return nil, err
			}
			obj[key] = val
		}
		return obj, nil
	case *hclsyntax.TemplateExpr:
		if len(e.Parts) == 1 {
			return exprToValue(e.Parts[0])
		}
	}

	if len(expr.Variables()) > 0 {
		return nil, fmt.Errorf("resource references must stand alone, not inside larger expressions")
	}
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("%s", diags.Error())
	}
	return ctyToGo(val)
}

func objectKey(keyExpr hclsyntax.Expression) (string, error) {
	if wrapped, ok := keyExpr.(*hclsyntax.ObjectConsKeyExpr); ok {
		if kw := hcl.ExprAsKeyword(wrapped.Wrapped); kw != "" {
			return kw, nil
		}
		keyExpr = wrapped.Wrapped
	}
	val, diags := keyExpr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("object keys must be static: %s", diags.Error())
	}
	if val.Type() != cty.String {
		return "", fmt.Errorf("object keys must be strings")
	}
	return val.AsString(), nil
}

// traversalToReference maps a kind.name.field traversal to a typed
// Reference.
func traversalToReference(traversal hcl.Traversal) (ir.Reference, error) {
	parts := make([]string, 0, len(traversal))
	for _, step := range traversal {
		switch s := step.(type) {
		case hcl.TraverseRoot:
			parts = append(parts, s.Name)
		case hcl.TraverseAttr:
			parts = append(parts, s.Name)
		default:
			return ir.Reference{}, fmt.Errorf("unsupported reference syntax at %s", step.SourceRange().String())
		}
	}
	if len(parts) != 3 {
		return ir.Reference{}, fmt.Errorf("references must take the form kind.name.field, got %q", hclTraversalString(parts))
	}
	return ir.Reference{Kind: parts[0], Name: parts[1], Field: parts[2]}, nil
}

// dependsOnAddrs decodes a depends_on list of kind.name traversals.
func dependsOnAddrs(expr hclsyntax.Expression) ([]string, error) {
	tuple, ok := expr.(*hclsyntax.TupleConsExpr)
	if !ok {
		return nil, fmt.Errorf("depends_on must be a list of resource addresses")
	}
	var addrs []string
	for _, item := range tuple.Exprs {
		trav, ok := item.(*hclsyntax.ScopeTraversalExpr)
		if !ok {
			return nil, fmt.Errorf("depends_on entries must be kind.name addresses")
		}
		parts := make([]string, 0, len(trav.Traversal))
		for _, step := range trav.Traversal {
			switch s := step.(type) {
			case hcl.TraverseRoot:
				parts = append(parts, s.Name)
			case hcl.TraverseAttr:
				parts = append(parts, s.Name)
			default:
				return nil, fmt.Errorf("depends_on entries must be kind.name addresses")
			}
		}
		if len(parts) != 2 {
			return nil, fmt.Errorf("depends_on entries must be kind.name addresses, got %q", hclTraversalString(parts))
		}
		addrs = append(addrs, parts[0]+"."+parts[1])
	}
	return addrs, nil
}

func hclTraversalString(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

func literalString(expr hclsyntax.Expression) (string, error) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return "", fmt.Errorf("must be a static string: %s", diags.Error())
	}
	if val.Type() != cty.String {
		return "", fmt.Errorf("must be a string")
	}
	return val.AsString(), nil
}

// ctyToGo converts an evaluated cty value into the plain Go values the
// core operates on.
func ctyToGo(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty == cty.Number:
		bf := val.AsBigFloat()
		if i, acc := bf.Int64(); acc == big.Exact {
			return i, nil
		}
		f, _ := bf.Float64()
		return f, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		var list []any
		for it := val.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			list = append(list, gv)
		}
		return list, nil
	case ty.IsObjectType() || ty.IsMapType():
		obj := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			kv, ev := it.Element()
			gv, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			obj[kv.AsString()] = gv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
}
