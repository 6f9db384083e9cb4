// Package codec encodes field values of stored documents whose types the
// document table has no dedicated encoding for.
//
// Snapshots record the codec name in their manifest; a workspace written
// with one codec is reopened with the same codec regardless of the
// configured default.
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

var (
	mu       sync.RWMutex
	registry = map[string]Codec{
		JSON{}.Name():   JSON{},
		GoJSON{}.Name(): GoJSON{},
	}
)

// Register makes c available to ByName. Registering a name twice panics.
func Register(c Codec) {
	mu.Lock()
	defer mu.Unlock()

	if _, dup := registry[c.Name()]; dup {
		panic(fmt.Sprintf("codec: %q registered twice", c.Name()))
	}
	registry[c.Name()] = c
}

// ByName returns a registered codec by its stable name.
func ByName(name string) (Codec, bool) {
	mu.RLock()
	defer mu.RUnlock()

	c, ok := registry[name]
	return c, ok
}

// Names returns the registered codec names in sorted order.
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

// EncodeFields encodes the scalar fields of a document. A document without
// fields encodes to nil.
func EncodeFields(c Codec, fields map[string]any) ([]byte, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	return c.Marshal(fields)
}

// DecodeFields is the inverse of EncodeFields.
func DecodeFields(c Codec, data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var fields map[string]any
	if err := c.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}
