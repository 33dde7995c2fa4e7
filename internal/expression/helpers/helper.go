// Package helpers provides the transform directive registry used by
// data mapping rules. Directives use @name:args syntax, e.g. @text:upper
// or @time:now.
package helpers

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Helper defines the interface for transform helpers.
type Helper interface {
	// Name returns the helper name (e.g., "text", "time").
	Name() string

	// Process applies the helper operation to the current field value.
	// args is everything after the helper name in the directive.
	Process(args, current string) (string, error)
}

// Registry manages registered helpers.
type Registry struct {
	mu      sync.RWMutex
	helpers map[string]Helper
}

// NewRegistry creates a new helper registry.
func NewRegistry() *Registry {
	return &Registry{
		helpers: make(map[string]Helper),
	}
}

// Register adds a helper to the registry.
func (r *Registry) Register(h Helper) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.helpers[h.Name()] = h
}

// Get looks a helper up by name.
func (r *Registry) Get(name string) (Helper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.helpers[name]
	return h, ok
}

// Transform applies a directive to the current field value.
// Unknown directives are an error so misconfigured rules surface during
// previews instead of silently passing values through.
func (r *Registry) Transform(directive, current string) (string, error) {
	isDirective, name, args := ParseDirective(directive)
	if !isDirective {
		return "", fmt.Errorf("not a transform directive: %q", directive)
	}

	helper, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("unknown transform helper: %q", name)
	}

	return helper.Process(args, current)
}

// ParseDirective parses a directive string (@name:args).
// Returns whether it's a directive, the helper name, and the arguments.
func ParseDirective(value string) (isDirective bool, name, args string) {
	rest, found := strings.CutPrefix(value, "@")
	if !found || rest == "" {
		return false, "", ""
	}

	colonIdx := strings.Index(rest, ":")
	if colonIdx <= 0 {
		// Bare @name with no args
		return true, rest, ""
	}

	return true, rest[:colonIdx], rest[colonIdx+1:]
}

// TextHelper provides string transform operations.
// Operations:
//   - upper, lower, title, trim
//   - prefix:<s>, suffix:<s>
//   - replace:<old>|<new>
type TextHelper struct {
	titleCaser cases.Caser
}

// NewTextHelper creates a new text helper.
func NewTextHelper() *TextHelper {
	return &TextHelper{
		titleCaser: cases.Title(language.Und),
	}
}

// Name returns the helper name.
func (h *TextHelper) Name() string {
	return "text"
}

// Process applies a text operation to the current value.
func (h *TextHelper) Process(args, current string) (string, error) {
	op := args
	var opArgs string
	if idx := strings.Index(args, ":"); idx > 0 {
		op = args[:idx]
		opArgs = args[idx+1:]
	}

	switch op {
	case "upper":
		return strings.ToUpper(current), nil
	case "lower":
		return strings.ToLower(current), nil
	case "title":
		return h.titleCaser.String(current), nil
	case "trim":
		return strings.TrimSpace(current), nil
	case "prefix":
		return opArgs + current, nil
	case "suffix":
		return current + opArgs, nil
	case "replace":
		parts := strings.SplitN(opArgs, "|", 2)
		if len(parts) != 2 {
			return "", fmt.Errorf("replace requires old|new")
		}
		return strings.ReplaceAll(current, parts[0], parts[1]), nil
	default:
		return "", fmt.Errorf("unknown text operation: %s", op)
	}
}

// TimeHelper provides time-related operations.
// Operations:
//   - now: current time in RFC3339 (or custom format via now:<layout>)
//   - format:<layout>: reformats the current RFC3339 value
type TimeHelper struct{}

// NewTimeHelper creates a new time helper.
func NewTimeHelper() *TimeHelper { return &TimeHelper{} }

func (h *TimeHelper) Name() string { return "time" }

// Process applies a time operation.
func (h *TimeHelper) Process(args, current string) (string, error) {
	op := args
	var opArgs string
	if idx := strings.Index(args, ":"); idx > 0 {
		op = args[:idx]
		opArgs = args[idx+1:]
	}

	switch op {
	case "now":
		t := time.Now().UTC()
		if opArgs == "" {
			return t.Format(time.RFC3339), nil
		}
		return t.Format(opArgs), nil
	case "format":
		if opArgs == "" {
			return "", fmt.Errorf("format requires a layout")
		}
		t, err := time.Parse(time.RFC3339, current)
		if err != nil {
			return "", fmt.Errorf("cannot parse time %q: %w", current, err)
		}
		return t.Format(opArgs), nil
	default:
		return "", fmt.Errorf("unknown time operation: %s", op)
	}
}

// default registry singleton
var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the default helper registry with standard helpers.
func DefaultRegistry() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewRegistry()
		defaultRegistry.Register(NewTextHelper())
		defaultRegistry.Register(NewTimeHelper())
	})
	return defaultRegistry
}
