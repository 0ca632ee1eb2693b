package transform

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidOption is returned for unknown option names and unparsable values.
var ErrInvalidOption = errors.New("invalid option")

// Kind is the value type of an option.
type Kind string

const (
	KindString   Kind = "string"
	KindNumber   Kind = "number"
	KindBool     Kind = "bool"
	KindDuration Kind = "duration"
	KindPages    Kind = "pages"
)

// Option describes one configurable option of a transform.
type Option struct {
	Description string
	Kind        Kind `validate:"oneof=string number bool duration pages"`
	Default     any
}

// PageLimit bounds how many pages a paginated transform fetches.
// The zero value is Unbounded.
type PageLimit struct {
	n int
}

// Unbounded fetches pages until the upstream runs out.
var Unbounded = PageLimit{}

// Pages returns a limit of n pages. n must be positive.
func Pages(n int) PageLimit {
	return PageLimit{n: max(n, 1)}
}

// Bounded returns the page count and whether the limit is finite.
func (p PageLimit) Bounded() (int, bool) {
	return p.n, p.n > 0
}

// Allows reports whether the 1-based page may be fetched.
func (p PageLimit) Allows(page int) bool {
	return p.n == 0 || page <= p.n
}

func (p PageLimit) String() string {
	if p.n == 0 {
		return "unbounded"
	}
	return strconv.Itoa(p.n)
}

// Options holds resolved option values keyed by name.
type Options map[string]any

// String returns a string option.
func (o Options) String(name string) string {
	s, _ := o[name].(string)
	return s
}

// Int returns a number option.
func (o Options) Int(name string) int {
	n, _ := o[name].(int)
	return n
}

// Bool returns a bool option.
func (o Options) Bool(name string) bool {
	b, _ := o[name].(bool)
	return b
}

// Duration returns a duration option.
func (o Options) Duration(name string) time.Duration {
	d, _ := o[name].(time.Duration)
	return d
}

// Pages returns a page limit option; absent means Unbounded.
func (o Options) Pages(name string) PageLimit {
	p, _ := o[name].(PageLimit)
	return p
}

// ResolveOptions parses raw values against the option specs and fills in
// defaults. Raw values may be strings (command line) or JSON scalars.
func ResolveOptions(specs map[string]Option, raw map[string]any) (Options, error) {
	var errs []error

	var unknown []string
	for name := range raw {
		if _, ok := specs[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		errs = append(errs, fmt.Errorf("%w: unknown option %q", ErrInvalidOption, name))
	}

	resolved := make(Options, len(specs))
	for name, spec := range specs {
		value, ok := raw[name]
		if !ok {
			value = spec.Default
		}
		if value == nil {
			continue
		}
		parsed, err := parseValue(spec.Kind, value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalidOption, name, err))
			continue
		}
		resolved[name] = parsed
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return resolved, nil
}

func parseValue(kind Kind, v any) (any, error) {
	switch kind {
	case KindString, "":
		if s, ok := v.(string); ok {
			return s, nil
		}
		return fmt.Sprint(v), nil
	case KindNumber:
		return parseInt(v)
	case KindBool:
		switch b := v.(type) {
		case bool:
			return b, nil
		case string:
			return strconv.ParseBool(strings.TrimSpace(b))
		}
		return nil, fmt.Errorf("expected bool, got %T", v)
	case KindDuration:
		return parseDuration(v)
	case KindPages:
		return parsePages(v)
	default:
		return nil, fmt.Errorf("unsupported option kind %q", kind)
	}
}

func parseInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, fmt.Errorf("expected integer, got %v", n)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, fmt.Errorf("expected integer, got %q", n)
		}
		return i, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

// parseDuration accepts Go durations ("30s") and bare numbers as milliseconds.
func parseDuration(v any) (time.Duration, error) {
	switch d := v.(type) {
	case time.Duration:
		return d, nil
	case string:
		s := strings.TrimSpace(d)
		if ms, err := strconv.Atoi(s); err == nil {
			return time.Duration(ms) * time.Millisecond, nil
		}
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("expected duration, got %q", d)
		}
		return parsed, nil
	}
	ms, err := parseInt(v)
	if err != nil {
		return 0, fmt.Errorf("expected duration, got %T", v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func parsePages(v any) (PageLimit, error) {
	switch p := v.(type) {
	case PageLimit:
		return p, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(p)) {
		case "all", "unbounded":
			return Unbounded, nil
		}
	}
	n, err := parseInt(v)
	if err != nil {
		return Unbounded, fmt.Errorf("expected page count or \"all\", got %v", v)
	}
	if n < 1 {
		return Unbounded, fmt.Errorf("page count must be positive, got %d", n)
	}
	return Pages(n), nil
}
