// Package demo holds the built-in graphs served by the weft CLI and servers.
// Each graph takes its external collaborators as parameters; the catalog
// wires them to deterministic fakes so the graphs run offline.
package demo

import (
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/graph"
	"github.com/aretw0/weft/pkg/registry"
)

// Demo is a runnable graph with a sample input.
type Demo struct {
	Name        string
	Description string
	Graph       *graph.Graph
	Input       domain.Values
	// StepLimit overrides the executor ceiling when non-zero.
	StepLimit int
}

type options struct {
	toolbox *registry.Registry
}

// Option customizes the collaborators of the catalog graphs.
type Option func(*options)

// WithToolbox replaces the registry used by the tools demo.
func WithToolbox(reg *registry.Registry) Option {
	return func(o *options) {
		o.toolbox = reg
	}
}

// Catalog returns every demo, sorted by name, wired to the canned fakes.
func Catalog(opts ...Option) ([]Demo, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.toolbox == nil {
		o.toolbox = Toolbox()
	}

	builders := []func() (Demo, error){
		routerDemo,
		reflectionDemo,
		sharedSubgraphDemo,
		isolatedSubgraphDemo,
		supervisorDemo,
		chatbotDemo,
		func() (Demo, error) { return toolsDemo(o.toolbox) },
	}

	demos := make([]Demo, 0, len(builders))
	for _, build := range builders {
		d, err := build()
		if err != nil {
			return nil, err
		}
		demos = append(demos, d)
	}
	slices.SortFunc(demos, func(a, b Demo) int { return strings.Compare(a.Name, b.Name) })
	return demos, nil
}

// Names lists the catalog entries.
func Names() []string {
	demos, err := Catalog()
	if err != nil {
		return nil
	}
	names := make([]string, len(demos))
	for i, d := range demos {
		names[i] = d.Name
	}
	return names
}

// Get returns the demo called name.
func Get(name string, opts ...Option) (Demo, error) {
	demos, err := Catalog(opts...)
	if err != nil {
		return Demo{}, err
	}
	for _, d := range demos {
		if d.Name == name {
			return d, nil
		}
	}
	return Demo{}, fmt.Errorf("unknown demo %q (available: %s)", name, strings.Join(Names(), ", "))
}
