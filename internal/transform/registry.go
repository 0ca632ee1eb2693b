package transform

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/Benny93/scout-go/internal/nodetype"
)

// ErrUnknownTransform is returned when a name or alias is not registered.
var ErrUnknownTransform = errors.New("unknown transform")

// Module is a compiled-in provider of transforms.
type Module interface {
	Name() string
	Transforms() []*Transform
}

// TypeProvider is implemented by modules that introduce node types.
type TypeProvider interface {
	NodeTypes() []nodetype.Info
}

// Registry indexes transforms by name and alias.
type Registry struct {
	mu       sync.RWMutex
	types    *nodetype.Registry
	validate *validator.Validate
	byName   map[string]*Transform
	byAlias  map[string]*Transform
}

// NewRegistry creates an empty registry checking transform types against types.
func NewRegistry(types *nodetype.Registry) *Registry {
	return &Registry{
		types:    types,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		byName:   make(map[string]*Transform),
		byAlias:  make(map[string]*Transform),
	}
}

// Types returns the node type registry transforms are validated against.
func (r *Registry) Types() *nodetype.Registry {
	return r.types
}

// Register validates and indexes a transform.
func (r *Registry) Register(t *Transform) error {
	if t == nil || t.Handler == nil {
		return fmt.Errorf("registering transform: missing handler")
	}
	if err := r.check(t); err != nil {
		return fmt.Errorf("registering %s: %w", t.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	keys := append([]string{t.Name}, t.Aliases...)
	for _, key := range keys {
		if other := r.lookupLocked(key); other != nil {
			return fmt.Errorf("registering %s: %q is already taken by %s", t.Name, key, other.Name)
		}
	}
	r.byName[t.Name] = t
	for _, alias := range t.Aliases {
		r.byAlias[alias] = t
	}
	return nil
}

// RegisterModule registers the module's node types, then its transforms.
func (r *Registry) RegisterModule(m Module) error {
	if tp, ok := m.(TypeProvider); ok {
		for _, info := range tp.NodeTypes() {
			if r.types.Known(info.Type) {
				continue
			}
			if err := r.types.Register(info.Type, info.Description); err != nil {
				return fmt.Errorf("module %s: %w", m.Name(), err)
			}
		}
	}
	for _, t := range m.Transforms() {
		if err := r.Register(t); err != nil {
			return fmt.Errorf("module %s: %w", m.Name(), err)
		}
	}
	return nil
}

// Lookup resolves a name or alias.
func (r *Registry) Lookup(nameOrAlias string) (*Transform, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if t := r.lookupLocked(nameOrAlias); t != nil {
		return t, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTransform, nameOrAlias)
}

// All returns every transform sorted by name.
func (r *Registry) All() []*Transform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Transform, 0, len(r.byName))
	for _, t := range r.byName {
		all = append(all, t)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

func (r *Registry) lookupLocked(key string) *Transform {
	if t, ok := r.byName[key]; ok {
		return t
	}
	return r.byAlias[key]
}

func (r *Registry) check(t *Transform) error {
	if err := r.validate.Struct(t.Descriptor); err != nil {
		return fmt.Errorf("invalid descriptor: %w", err)
	}
	for _, key := range append([]string{t.Name}, t.Aliases...) {
		if strings.ContainsAny(key, " \t\n") {
			return fmt.Errorf("name %q contains whitespace", key)
		}
	}

	seen := make(map[string]bool, len(t.Aliases))
	for _, alias := range t.Aliases {
		if alias == t.Name || seen[alias] {
			return fmt.Errorf("duplicate alias %q", alias)
		}
		seen[alias] = true
	}

	for _, typ := range t.Types {
		if !r.types.Known(typ) {
			return fmt.Errorf("unknown node type %s", typ)
		}
	}

	if _, err := ResolveOptions(t.Options, nil); err != nil {
		return fmt.Errorf("bad option default: %w", err)
	}
	return nil
}
