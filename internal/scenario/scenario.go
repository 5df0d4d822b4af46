package scenario

import (
	"fmt"
	"os"

	"github.com/forgelabs/ecsframe/ecs"
	"gopkg.in/yaml.v3"
)

// entityFile is the on-disk shape of a scenario manifest: a flat list of
// entities, each a bag of named components, e.g.
//
//	entities:
//	  - components:
//	      position: {x: 1, y: 2}
//	      velocity: {dx: 0.1, dy: 0}
//
// Grounded on the teacher's internal/data YAML game-table loaders
// (internal/data/npc.go: os.ReadFile + yaml.Unmarshal into a flat list
// struct), generalized from a fixed NpcTemplate schema to an open bag of
// named components, since a generic ECS host can't know the component set
// ahead of time the way the teacher's fixed NPC table can.
type entityFile struct {
	Entities []entitySpec `yaml:"entities"`
}

type entitySpec struct {
	Components map[string]yaml.Node `yaml:"components"`
}

// Loader decodes one named component's YAML node and enqueues it onto an
// in-progress EntityBuilder.
type Loader struct {
	Name  string
	Apply func(b *ecs.EntityBuilder, raw yaml.Node) error
}

// LoaderFor builds the Loader for component type T, named name in a
// scenario's components map.
func LoaderFor[T any](name string) Loader {
	return Loader{
		Name: name,
		Apply: func(b *ecs.EntityBuilder, raw yaml.Node) error {
			var v T
			if err := raw.Decode(&v); err != nil {
				return fmt.Errorf("decode component %s: %w", name, err)
			}
			ecs.With(b, v)
			return nil
		},
	}
}

// Seed reads the scenario manifest at path and creates one entity per
// listed entry, applying every named component through the matching
// Loader. A component named in the manifest with no matching loader is an
// error — silently ignoring a typo'd component name would seed a world
// that looks right but is missing data.
func Seed(w *ecs.World, loaders []Loader, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read scenario %s: %w", path, err)
	}
	var f entityFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse scenario %s: %w", path, err)
	}

	byName := make(map[string]Loader, len(loaders))
	for _, l := range loaders {
		byName[l.Name] = l
	}

	for i, spec := range f.Entities {
		b := w.CreateBuilder()
		for name, raw := range spec.Components {
			loader, ok := byName[name]
			if !ok {
				return fmt.Errorf("scenario entity %d: no loader registered for component %q", i, name)
			}
			if err := loader.Apply(b, raw); err != nil {
				return fmt.Errorf("scenario entity %d: %w", i, err)
			}
		}
		b.Build()
	}
	return nil
}
