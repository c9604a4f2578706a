package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/nimbusworks/dfm/validation"
)

// Arity declares how many upstream value streams an api_class consumes.
type Arity int

const (
	// Nullary nodes take no upstream values.
	Nullary Arity = iota
	// Unary nodes consume exactly one upstream stream.
	Unary
	// Binary nodes pair two upstream streams element-wise.
	Binary
	// Variadic nodes consume one or more upstream streams.
	Variadic
)

// String returns the arity name.
func (a Arity) String() string {
	switch a {
	case Nullary:
		return "nullary"
	case Unary:
		return "unary"
	case Binary:
		return "binary"
	case Variadic:
		return "variadic"
	default:
		return "unknown"
	}
}

// Matches reports whether the number of declared inputs satisfies the arity.
func (a Arity) Matches(numInputs int) bool {
	switch a {
	case Nullary:
		return numInputs == 0
	case Unary:
		return numInputs == 1
	case Binary:
		return numInputs == 2
	case Variadic:
		return numInputs >= 1
	default:
		return false
	}
}

// Spec describes one api_class in the closed registry: its tag, the schema
// of its param record, and its arity.
type Spec struct {
	// Class is the fully qualified api_class tag.
	Class string
	// Description is a one-line summary shown by discovery.
	Description string
	// Arity declares the upstream stream count.
	Arity Arity
	// NewParams returns a pointer to a zero param record for decoding.
	// Nil means the class takes no params.
	NewParams func() any
	// Internal classes are injected by services and rejected on client
	// submission.
	Internal bool
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Spec)
)

// Register adds an api_class to the registry. Duplicate registration panics;
// the registry is assembled once at init time.
func Register(spec Spec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if spec.Class == "" {
		panic("api: cannot register spec without a class tag")
	}
	if _, exists := registry[spec.Class]; exists {
		panic(fmt.Sprintf("api: api_class %s registered twice", spec.Class))
	}
	registry[spec.Class] = spec
}

// Lookup returns the Spec for an api_class.
func Lookup(class string) (Spec, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	spec, ok := registry[class]
	return spec, ok
}

// Classes returns all registered api_class tags, sorted.
func Classes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	classes := make([]string, 0, len(registry))
	for class := range registry {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	return classes
}

// DecodeParams strictly decodes and validates a raw param record against the
// schema registered for class. Unknown fields are rejected.
func DecodeParams(class string, raw json.RawMessage) (any, error) {
	spec, ok := Lookup(class)
	if !ok {
		return nil, fmt.Errorf("api_class %s is not registered", class)
	}
	if spec.NewParams == nil {
		return nil, nil
	}

	params := spec.NewParams()
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(params); err != nil {
		return nil, fmt.Errorf("params for %s: %w", class, err)
	}
	if err := validation.Validate(params); err != nil {
		return nil, fmt.Errorf("params for %s: %w", class, err)
	}
	return params, nil
}
