package provider

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Settings carries credentials and provider-specific options. Credential
// fields are filled from the process configuration; Options holds the
// free-form key=value pairs given with --provider-setting.
type Settings struct {
	AccessKeyID     string
	AccessKeySecret string
	Region          string
	Options         map[string]string
}

// Option returns the named option, or fallback if it is unset or empty.
func (s Settings) Option(key, fallback string) string {
	if v := strings.TrimSpace(s.Options[key]); v != "" {
		return v
	}
	return fallback
}

// Factory constructs a Provider from Settings.
type Factory func(log *slog.Logger, settings Settings) (Provider, error)

// Credentials lists the credentials a provider cannot work without.
type Credentials struct {
	KeyID  bool
	Secret bool
}

var (
	mu        sync.Mutex
	factories = make(map[string]Factory)
	required  = make(map[string]Credentials)
)

// Register is called by provider packages in their init() to self-register.
// creds, if given, declares the credentials the provider requires so they
// can be checked before any provider is built.
func Register(name string, f Factory, creds ...Credentials) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := factories[name]; exists {
		panic(fmt.Sprintf("provider: %q already registered", name))
	}
	factories[name] = f
	if len(creds) > 0 {
		required[name] = creds[0]
	}
}

// RequiredCredentials returns the credentials the named provider requires.
func RequiredCredentials(name string) Credentials {
	mu.Lock()
	defer mu.Unlock()
	return required[name]
}

// New looks up the named provider in the registry and creates it.
func New(name string, log *slog.Logger, settings Settings) (Provider, error) {
	mu.Lock()
	f, ok := factories[name]
	mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown DNS provider %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	if log == nil {
		log = slog.Default()
	}
	p, err := f(log, settings)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", name, err)
	}
	return p, nil
}

// Names returns the sorted names of all registered providers.
func Names() []string {
	mu.Lock()
	defer mu.Unlock()
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Registered reports whether name has a registered factory.
func Registered(name string) bool {
	mu.Lock()
	defer mu.Unlock()
	_, ok := factories[name]
	return ok
}
