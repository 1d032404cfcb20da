// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package langprofile

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// DefaultLanguage is resolved when no language is named.
const DefaultLanguage = "python"

// ErrUnknownProfile is wrapped by lookups for names no registered
// profile answers to.
var ErrUnknownProfile = errors.New("unknown language profile")

//go:embed profiles/*.yaml
var builtinFiles embed.FS

var (
	builtinOnce     sync.Once
	builtinProfiles []*Profile
	builtinErr      error
)

func loadBuiltins() ([]*Profile, error) {
	builtinOnce.Do(func() {
		entries, err := builtinFiles.ReadDir("profiles")
		if err != nil {
			builtinErr = fmt.Errorf("reading built-in profiles: %w", err)
			return
		}
		for _, entry := range entries {
			data, err := builtinFiles.ReadFile("profiles/" + entry.Name())
			if err != nil {
				builtinErr = fmt.Errorf("reading built-in profile %s: %w", entry.Name(), err)
				return
			}
			profile, err := ParseManifest(data, FormatYAML)
			if err != nil {
				builtinErr = fmt.Errorf("built-in profile %s: %w", entry.Name(), err)
				return
			}
			builtinProfiles = append(builtinProfiles, profile)
		}
	})
	return builtinProfiles, builtinErr
}

// Registry indexes profiles by name, alias, extension and MIME type.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	profiles   map[string]*Profile
	aliases    map[string]string
	extensions map[string][]string
	mimeTypes  map[string][]string
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		profiles:   make(map[string]*Profile),
		aliases:    make(map[string]string),
		extensions: make(map[string][]string),
		mimeTypes:  make(map[string][]string),
	}
}

// Builtin returns a new registry holding the built-in profiles. The
// profiles themselves are shared and immutable; the registry is the
// caller's to extend.
func Builtin() (*Registry, error) {
	profiles, err := loadBuiltins()
	if err != nil {
		return nil, err
	}
	registry := NewRegistry()
	for _, profile := range profiles {
		registry.Register(profile, false)
	}
	return registry, nil
}

// Python returns the built-in python profile.
func Python() (*Profile, error) {
	registry, err := Builtin()
	if err != nil {
		return nil, err
	}
	return registry.Resolve(DefaultLanguage)
}

// Register adds a compiled profile. An existing profile of the same
// name is kept unless override is set; with override, aliases the new
// profile declares are rebound to it too.
func (r *Registry) Register(profile *Profile, override bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	canonical := strings.ToLower(profile.Name)
	if _, exists := r.profiles[canonical]; exists && !override {
		return
	}
	r.profiles[canonical] = profile
	r.aliases[canonical] = canonical
	for _, alias := range profile.Aliases {
		if _, taken := r.aliases[alias]; override || !taken {
			r.aliases[alias] = canonical
		}
	}
	for _, extension := range profile.Extensions {
		r.extensions[extension] = appendUnique(r.extensions[extension], canonical)
	}
	for _, mimeType := range profile.MIMETypes {
		r.mimeTypes[mimeType] = appendUnique(r.mimeTypes[mimeType], canonical)
	}
}

func appendUnique(names []string, name string) []string {
	for _, existing := range names {
		if existing == name {
			return names
		}
	}
	return append(names, name)
}

// RegisterManifest loads a manifest file and registers its profile.
func (r *Registry) RegisterManifest(path string, override bool) (*Profile, error) {
	profile, err := LoadManifest(path)
	if err != nil {
		return nil, err
	}
	r.Register(profile, override)
	return profile, nil
}

// Names returns the canonical names of every registered profile.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the profile for a name or alias, or the default
// language when name is empty.
func (r *Registry) Resolve(name string) (*Profile, error) {
	target := name
	if target == "" {
		target = DefaultLanguage
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	canonical, ok := r.aliases[strings.ToLower(target)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProfile, target)
	}
	return r.profiles[canonical], nil
}

// ResolveSpec resolves a name, an alias or the path of a manifest file.
// Manifests given by path replace any registered profile of the same
// name.
func (r *Registry) ResolveSpec(spec string) (*Profile, error) {
	profile, err := r.Resolve(spec)
	if err == nil {
		return profile, nil
	}
	if spec != "" {
		if info, statErr := os.Stat(spec); statErr == nil && !info.IsDir() {
			return r.RegisterManifest(spec, true)
		}
	}
	return nil, err
}

// ForExtension returns the profiles claiming an extension, in
// registration order. The leading dot is optional.
func (r *Registry) ForExtension(extension string) []*Profile {
	extension = strings.ToLower(extension)
	if !strings.HasPrefix(extension, ".") {
		extension = "." + extension
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.extensions[extension])
}

// ForMIME returns the profiles declaring a MIME type.
func (r *Registry) ForMIME(mimeType string) []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.mimeTypes[strings.ToLower(mimeType)])
}

func (r *Registry) collect(names []string) []*Profile {
	profiles := make([]*Profile, 0, len(names))
	for _, name := range names {
		profiles = append(profiles, r.profiles[name])
	}
	return profiles
}

// ForPath picks the profile for a source file. An explicit hint (a
// name, alias or manifest path) wins, then the MIME type, then the
// file extension; otherwise the default language is used.
func (r *Registry) ForPath(path, hint, mimeType string) (*Profile, error) {
	if hint != "" {
		return r.ResolveSpec(hint)
	}
	if mimeType != "" {
		if profiles := r.ForMIME(mimeType); len(profiles) > 0 {
			return profiles[0], nil
		}
	}
	if extension := filepath.Ext(path); extension != "" {
		if profiles := r.ForExtension(extension); len(profiles) > 0 {
			return profiles[0], nil
		}
	}
	return r.Resolve(DefaultLanguage)
}
