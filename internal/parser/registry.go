package parser

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

const DefaultKey = "default"

// Constructor builds a fresh parser instance.
type Constructor func() Parser

type Registry struct {
	ctors map[string]Constructor
	mu    sync.RWMutex
}

// NewRegistry returns a registry holding the built-in parsers.
func NewRegistry() *Registry {
	r := &Registry{ctors: make(map[string]Constructor)}
	r.ctors[DefaultKey] = func() Parser { return &DefaultParser{} }
	r.ctors["markdown"] = func() Parser { return &MarkdownParser{} }
	r.ctors["json"] = func() Parser { return &JSONParser{} }
	r.ctors["xml"] = func() Parser { return &XMLParser{} }
	return r
}

// Register adds a parser under a lowercase key. Keys cannot be replaced.
func (r *Registry) Register(key string, ctor Constructor) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return fmt.Errorf("parser key cannot be empty")
	}
	if ctor == nil {
		return fmt.Errorf("parser %s: nil constructor", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ctors[key]; exists {
		return fmt.Errorf("parser %s already registered", key)
	}
	r.ctors[key] = ctor
	return nil
}

// Get returns a new parser for key (case-insensitive).
func (r *Registry) Get(key string) (Parser, error) {
	r.mu.RLock()
	ctor, ok := r.ctors[strings.ToLower(strings.TrimSpace(key))]
	r.mu.RUnlock()

	if !ok {
		return nil, &UnsupportedParserError{Name: key, Supported: r.Keys()}
	}
	return ctor(), nil
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.ctors))
	for k := range r.ctors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var defaultRegistry = NewRegistry()

// Register adds a parser to the process-wide registry.
func Register(key string, ctor Constructor) error {
	return defaultRegistry.Register(key, ctor)
}

// New returns a parser from the process-wide registry.
func New(key string) (Parser, error) {
	return defaultRegistry.Get(key)
}

func Supported() []string {
	return defaultRegistry.Keys()
}
