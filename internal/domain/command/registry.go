// internal/domain/command/registry.go
package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"film_department_bot/internal/domain/message"
)

// Registry errors. All of them are configuration errors detected at startup.
var (
	ErrDuplicateCommand = errors.New("command already registered")
	ErrInvalidCommand   = errors.New("invalid command registration")
	ErrRegistrySealed   = errors.New("command registry is sealed")
)

// Handler produces the reply for an update. Returning false is an explicit no-op:
// the command was recognised but nothing should be sent back.
type Handler func(update message.Update) (message.Reply, bool)

// Entry is one registration: the command name, a short description used for help
// text and the platform command menu, and the handler.
type Entry struct {
	Name        string
	Description string
	Handler     Handler
}

// Registry maps command names to handlers. It is filled during startup, sealed,
// and then only read. Reads take no lock; no writes are accepted after Seal.
type Registry struct {
	entries map[string]Entry
	order   []string
	sealed  bool
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register adds a single handler under name.
func (r *Registry) Register(name, description string, h Handler) error {
	return r.RegisterAll([]Entry{{Name: name, Description: description, Handler: h}})
}

// RegisterAll adds a set of entries atomically: the whole set is validated against
// itself and the current contents first, and nothing is added if any entry fails.
func (r *Registry) RegisterAll(entries []Entry) error {
	if r.sealed {
		return ErrRegistrySealed
	}

	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if err := validateEntry(e); err != nil {
			return err
		}
		if _, exists := r.entries[e.Name]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateCommand, e.Name)
		}
		if _, exists := seen[e.Name]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateCommand, e.Name)
		}
		seen[e.Name] = struct{}{}
	}

	for _, e := range entries {
		r.entries[e.Name] = e
		r.order = append(r.order, e.Name)
	}
	return nil
}

func validateEntry(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("%w: empty command name", ErrInvalidCommand)
	}
	if strings.IndexFunc(e.Name, unicode.IsSpace) >= 0 || strings.ContainsRune(e.Name, '@') {
		return fmt.Errorf("%w: command name %q contains whitespace or '@'", ErrInvalidCommand, e.Name)
	}
	if e.Handler == nil {
		return fmt.Errorf("%w: command %q has no handler", ErrInvalidCommand, e.Name)
	}
	return nil
}

// Seal marks the end of startup. Subsequent registrations fail.
func (r *Registry) Seal() {
	r.sealed = true
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.sealed
}

// Resolve looks up the handler for an exact, case-sensitive command name.
func (r *Registry) Resolve(name string) (Handler, bool) {
	e, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	return e.Handler, true
}

// Names returns the registered command names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns the registrations in the order they were added.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// Len returns the number of registered commands.
func (r *Registry) Len() int {
	return len(r.entries)
}
