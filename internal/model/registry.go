package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownType is returned when a discriminator has no registered factory.
var ErrUnknownType = errors.New("unknown type discriminator")

// PayloadError reports a change or entity payload that could not be
// encoded or decoded. Raw holds the offending payload verbatim.
type PayloadError struct {
	Kind     string // "change", "entity" or "change entity"
	TypeName string
	Raw      string
	Err      error
}

func (e *PayloadError) Error() string {
	if e.TypeName != "" {
		return fmt.Sprintf("%s payload %q (%s): %v", e.Kind, e.TypeName, e.Raw, e.Err)
	}
	return fmt.Sprintf("%s payload (%s): %v", e.Kind, e.Raw, e.Err)
}

func (e *PayloadError) Unwrap() error {
	return e.Err
}

// IsPayloadError returns true if err wraps a *PayloadError.
func IsPayloadError(err error) bool {
	var pe *PayloadError
	return errors.As(err, &pe)
}

var (
	registryMu sync.RWMutex
	changes    = make(map[string]func() Change)
	entities   = make(map[string]func() Entity)
)

// RegisterChange makes a change type available under name. The factory
// must return a pointer that json.Unmarshal can populate.
// Panics if name is registered twice.
func RegisterChange(name string, factory func() Change) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := changes[name]; dup {
		panic("model: RegisterChange called twice for " + name)
	}
	changes[name] = factory
}

// RegisterEntity makes an entity type available under name.
// Panics if name is registered twice.
func RegisterEntity(name string, factory func() Entity) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := entities[name]; dup {
		panic("model: RegisterEntity called twice for " + name)
	}
	entities[name] = factory
}

// ChangeTypes returns the registered change discriminators, sorted.
func ChangeTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EncodeChange serializes a change payload (without its discriminator).
func EncodeChange(c Change) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, &PayloadError{Kind: "change", TypeName: c.TypeName(), Raw: fmt.Sprintf("%+v", c), Err: err}
	}
	return data, nil
}

// DecodeChange rebuilds a change from its discriminator and payload.
func DecodeChange(typeName string, raw []byte) (Change, error) {
	registryMu.RLock()
	factory, ok := changes[typeName]
	registryMu.RUnlock()
	if !ok {
		return nil, &PayloadError{Kind: "change", TypeName: typeName, Raw: string(raw), Err: ErrUnknownType}
	}
	c := factory()
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, &PayloadError{Kind: "change", TypeName: typeName, Raw: string(raw), Err: err}
	}
	return c, nil
}

// EncodeEntity serializes an entity payload (without its discriminator).
func EncodeEntity(e Entity) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, &PayloadError{Kind: "entity", TypeName: e.TypeName(), Raw: fmt.Sprintf("%+v", e), Err: err}
	}
	return data, nil
}

// DecodeEntity rebuilds an entity from its discriminator and payload.
func DecodeEntity(typeName string, raw []byte) (Entity, error) {
	registryMu.RLock()
	factory, ok := entities[typeName]
	registryMu.RUnlock()
	if !ok {
		return nil, &PayloadError{Kind: "entity", TypeName: typeName, Raw: string(raw), Err: ErrUnknownType}
	}
	e := factory()
	if err := json.Unmarshal(raw, e); err != nil {
		return nil, &PayloadError{Kind: "entity", TypeName: typeName, Raw: string(raw), Err: err}
	}
	return e, nil
}
