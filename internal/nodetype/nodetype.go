// Package nodetype provides the vocabulary of node type tags for Scout.
//
// Transforms declare which types they accept as sources; the orchestrator
// matches candidate nodes against those declarations. Providers register
// service-specific types (e.g. "github:member") next to the built-in ones.
package nodetype

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"sync"
)

// Type is a node type tag.
type Type string

const (
	String   Type = "string"
	URI      Type = "uri"
	Domain   Type = "domain"
	Email    Type = "email"
	IPv4     Type = "ipv4"
	Brand    Type = "brand"
	Software Type = "software"
)

// Info describes a registered type.
type Info struct {
	Type        Type
	Description string
}

// Builtin lists the types every registry starts with.
var Builtin = []Info{
	{String, "Generic string"},
	{URI, "Absolute http(s) URI"},
	{Domain, "DNS host or domain name"},
	{Email, "Email address"},
	{IPv4, "IPv4 address"},
	{Brand, "Brand, organisation or user name"},
	{Software, "Software product and version"},
}

// Registry holds the known node types in registration order.
type Registry struct {
	mu    sync.RWMutex
	types map[Type]Info
	order []Type
}

// NewRegistry creates a registry pre-populated with the built-in types.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[Type]Info)}
	for _, info := range Builtin {
		_ = r.Register(info.Type, info.Description)
	}
	return r
}

// Register adds a type. Registering the same type twice is an error.
func (r *Registry) Register(t Type, description string) error {
	if t == "" {
		return fmt.Errorf("empty node type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[t]; exists {
		return fmt.Errorf("node type %s already registered", t)
	}
	r.types[t] = Info{Type: t, Description: description}
	r.order = append(r.order, t)
	return nil
}

// Lookup returns the info for a type.
func (r *Registry) Lookup(t Type) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.types[t]
	return info, ok
}

// Known reports whether a type is registered.
func (r *Registry) Known(t Type) bool {
	_, ok := r.Lookup(t)
	return ok
}

// All returns every registered type in registration order.
func (r *Registry) All() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.order))
	for _, t := range r.order {
		infos = append(infos, r.types[t])
	}
	return infos
}

var (
	emailPattern  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	domainPattern = regexp.MustCompile(`^(?i)([a-z0-9]([a-z0-9-]*[a-z0-9])?\.)+[a-z]{2,63}\.?$`)
)

// Infer guesses the type of an unstructured seed string.
func Infer(raw string) Type {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)

	switch {
	case strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://"):
		return URI
	case emailPattern.MatchString(s):
		return Email
	case isIPv4(s):
		return IPv4
	case domainPattern.MatchString(s):
		return Domain
	case s == "" || strings.ContainsAny(s, " \t"):
		return String
	default:
		return Brand
	}
}

func isIPv4(s string) bool {
	ip := net.ParseIP(s)
	return ip != nil && ip.To4() != nil && strings.Count(s, ".") == 3
}
