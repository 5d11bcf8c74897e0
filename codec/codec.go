// Package codec centralizes the encoding of persisted table descriptors.
//
// Catalog documents record the codec name in their header, so a catalog can
// always decode documents written with a different registered codec.
package codec

import (
	"fmt"
	"slices"
	"sync"
)

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Default is the codec used for newly written documents.
var Default Codec = GoJSON{}

var (
	mu       sync.RWMutex
	registry = map[string]Codec{}
)

func init() {
	for _, c := range []Codec{JSON{}, GoJSON{}, BSON{}} {
		registry[c.Name()] = c
	}
}

// Register makes c available to ByName. Catalog names are stored in a
// single byte-length prefixed field, so names are limited to 255 bytes.
func Register(c Codec) error {
	name := c.Name()
	if name == "" || len(name) > 255 {
		return fmt.Errorf("codec: invalid name %q", name)
	}
	mu.Lock()
	defer mu.Unlock()
	if _, dup := registry[name]; dup {
		return fmt.Errorf("codec: %q already registered", name)
	}
	registry[name] = c
	return nil
}

// ByName returns the registered codec with name.
func ByName(name string) (Codec, bool) {
	mu.RLock()
	defer mu.RUnlock()
	c, ok := registry[name]
	return c, ok
}

// Names returns the names of the registered codecs in order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
