// Copyright 2026 The Karnal64 Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resource

import (
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"karnal.dev/karnal64/pkg/abi/karnal"
	"karnal.dev/karnal64/pkg/errors/kerr"
	"karnal.dev/karnal64/pkg/log"
	"karnal.dev/karnal64/pkg/sentry/context"
)

// MaxNameLength is the maximum length of a resource name in bytes.
const MaxNameLength = 256

// Well-known name prefixes.
const (
	DevicePrefix   = "karnal://device/"
	SysPrefix      = "karnal://sys/"
	TaskSelfPrefix = "karnal://task/self/"
	BinPrefix      = "karnal://bin/"
)

// ValidateName checks that name is valid UTF-8 of 1 to MaxNameLength bytes.
func ValidateName(name string) error {
	if len(name) == 0 || len(name) > MaxNameLength || !utf8.ValidString(name) {
		return kerr.ErrInvalidArgument
	}
	return nil
}

// Factory creates the provider for a name that does not exist yet when it is
// acquired with CREATE. It returns the provider and its default modes.
type Factory func(ctx context.Context, name string) (Provider, karnal.Mode, error)

// Releaser is implemented by providers that hold kernel memory. Release is
// called once the provider is removed from the registry.
type Releaser interface {
	Release()
}

func release(p Provider) {
	if r, ok := p.(Releaser); ok {
		r.Release()
	}
}

// Entry is a registered resource.
type Entry struct {
	name         string
	provider     Provider
	defaultModes karnal.Mode

	// mu protects the fields below.
	mu sync.Mutex

	// handles is the number of live handles naming this entry.
	handles int

	// exclusive is set while the live handles descend from an EXCLUSIVE
	// acquisition.
	exclusive bool

	// revoked is set once the entry has been removed from the registry.
	// Live handles to a revoked entry are stale.
	revoked bool
}

// Name returns the entry's name.
func (e *Entry) Name() string { return e.name }

// Provider returns the entry's provider.
func (e *Entry) Provider() Provider { return e.provider }

// DefaultModes returns the modes the entry was registered with.
func (e *Entry) DefaultModes() karnal.Mode { return e.defaultModes }

// Handles returns the number of live handles.
func (e *Entry) Handles() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.handles
}

// Revoked returns true if the entry was removed from its registry.
func (e *Entry) Revoked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.revoked
}

// open accounts a new handle acquired with mode.
func (e *Entry) open(mode karnal.Mode) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.revoked {
		return kerr.ErrNotFound
	}
	if e.exclusive || (mode&karnal.ModeExclusive != 0 && e.handles > 0) {
		return kerr.ErrBusy
	}
	e.handles++
	if mode&karnal.ModeExclusive != 0 {
		e.exclusive = true
	}
	return nil
}

// Dup accounts a duplicate of an existing handle. Duplicates share the
// exclusivity of the original.
func (e *Entry) Dup() {
	e.mu.Lock()
	e.handles++
	e.mu.Unlock()
}

// Close accounts the release of a handle.
func (e *Entry) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handles <= 0 {
		panic("resource: handle count underflow for " + e.name)
	}
	e.handles--
	if e.handles == 0 {
		e.exclusive = false
	}
}

// Registry maps names to providers. It is safe for concurrent use; lookups
// take a read lock.
type Registry struct {
	// mu protects the maps below.
	mu sync.RWMutex

	entries   map[string]*Entry
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:   make(map[string]*Entry),
		factories: make(map[string]Factory),
	}
}

// Register adds a provider under name.
func (r *Registry) Register(name string, p Provider, defaultModes karnal.Mode) (*Entry, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if p == nil || defaultModes&^karnal.ModeMask != 0 {
		return nil, kerr.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(name, p, defaultModes)
}

// Preconditions: r.mu must be locked for writing.
func (r *Registry) registerLocked(name string, p Provider, defaultModes karnal.Mode) (*Entry, error) {
	if _, ok := r.entries[name]; ok {
		return nil, kerr.ErrAlreadyExists
	}
	e := &Entry{name: name, provider: p, defaultModes: defaultModes}
	r.entries[name] = e
	log.Debugf("Registered resource %q (modes %#x)", name, defaultModes)
	return e, nil
}

// RegisterFactory installs f for names beginning with prefix. The longest
// matching prefix wins.
func (r *Registry) RegisterFactory(prefix string, f Factory) error {
	if err := ValidateName(prefix); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[prefix]; ok {
		return kerr.ErrAlreadyExists
	}
	r.factories[prefix] = f
	return nil
}

// Lookup returns the entry registered under name.
func (r *Registry) Lookup(name string) (*Entry, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, kerr.ErrNotFound
	}
	return e, nil
}

// Deregister removes name. It fails with Busy while handles to it are live.
func (r *Registry) Deregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return kerr.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handles > 0 {
		return kerr.ErrBusy
	}
	// Racing acquisitions that already found e fail in open.
	e.revoked = true
	delete(r.entries, name)
	release(e.provider)
	return nil
}

// Revoke removes name even if handles to it are live. Those handles become
// stale and report BadHandle on use.
func (r *Registry) Revoke(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[name]
	if !ok {
		return kerr.ErrNotFound
	}
	e.mu.Lock()
	e.revoked = true
	e.mu.Unlock()
	delete(r.entries, name)
	release(e.provider)
	log.Infof("Revoked resource %q", name)
	return nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Preconditions: r.mu must be locked.
func (r *Registry) factoryLocked(name string) Factory {
	var (
		best   string
		bestFn Factory
	)
	for prefix, f := range r.factories {
		if strings.HasPrefix(name, prefix) && len(prefix) > len(best) && len(name) > len(prefix) {
			best, bestFn = prefix, f
		}
	}
	return bestFn
}

// Acquire resolves name for a new handle with mode and accounts the handle on
// the returned entry. The caller must call Entry.Close when the handle dies.
//
// A missing name is created through the matching factory when mode contains
// CREATE. CREATE|EXCLUSIVE fails with AlreadyExists if the name exists.
// EXCLUSIVE fails with Busy while other handles are live, and any acquisition
// fails with Busy while an exclusive handle is live.
func (r *Registry) Acquire(ctx context.Context, name string, mode karnal.Mode) (*Entry, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if mode&^karnal.ModeMask != 0 {
		return nil, kerr.ErrInvalidArgument
	}

	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	switch {
	case ok && mode.Has(karnal.ModeCreate|karnal.ModeExclusive):
		return nil, kerr.ErrAlreadyExists
	case !ok && mode&karnal.ModeCreate == 0:
		return nil, kerr.ErrNotFound
	case !ok:
		var err error
		if e, err = r.create(ctx, name, mode); err != nil {
			return nil, err
		}
	}

	if !e.provider.SupportsMode(mode) {
		return nil, kerr.ErrPermissionDenied
	}
	if err := e.open(mode); err != nil {
		return nil, err
	}
	return e, nil
}

// create registers name through its factory.
func (r *Registry) create(ctx context.Context, name string, mode karnal.Mode) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[name]; ok {
		// Lost a race with another creator.
		if mode&karnal.ModeExclusive != 0 {
			return nil, kerr.ErrAlreadyExists
		}
		return e, nil
	}
	f := r.factoryLocked(name)
	if f == nil {
		return nil, kerr.ErrNotFound
	}
	p, defaultModes, err := f(ctx, name)
	if err != nil {
		return nil, err
	}
	// A failed acquisition leaves no trace in the namespace.
	if !p.SupportsMode(mode) {
		release(p)
		return nil, kerr.ErrPermissionDenied
	}
	return r.registerLocked(name, p, defaultModes)
}
