package credential

import (
	"context"
	"errors"
	"strings"
	"sync"

	"decide-ai/internal/config"
)

// State of the credential gate.
type State string

const (
	StatePresent State = "CREDENTIAL_PRESENT"
	StateMissing State = "CREDENTIAL_MISSING"
)

// ErrMissing is returned by Acquire when no usable credential could be obtained.
var ErrMissing = errors.New("no usable api credential")

// Source supplies the currently configured API key.
type Source interface {
	APIKey(ctx context.Context) string
}

// Selector is the optional host capability that lets the user pick a key.
type Selector interface {
	// Available reports whether the host offers key selection at all.
	Available() bool
	HasSelectedKey(ctx context.Context) (bool, error)
	OpenSelectKey(ctx context.Context) error
}

// NoopSelector models a host without a key-selection capability.
type NoopSelector struct{}

func (NoopSelector) Available() bool { return false }

func (NoopSelector) HasSelectedKey(context.Context) (bool, error) { return false, nil }

func (NoopSelector) OpenSelectKey(context.Context) error { return nil }

// Clearer is implemented by sources whose key can be dropped after the
// backend rejects it.
type Clearer interface {
	Clear()
}

// Usable reports whether key is a real credential. Empty strings, whitespace and
// the literal "undefined" placeholder count as absent.
func Usable(key string) bool {
	trimmed := strings.TrimSpace(key)
	return trimmed != "" && trimmed != "undefined"
}

// Gate makes sure a usable credential exists before a backend call and drives
// the re-selection path when the backend rejects one.
type Gate struct {
	source   Source
	selector Selector

	mu    sync.Mutex
	state State
}

// NewGate builds a gate. A nil selector behaves like NoopSelector.
func NewGate(source Source, selector Selector) *Gate {
	if selector == nil {
		selector = NoopSelector{}
	}
	return &Gate{
		source:   source,
		selector: selector,
		state:    StateMissing,
	}
}

// State returns the gate's current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// SelectorAvailable reports whether a host selection capability is wired in.
func (g *Gate) SelectorAvailable() bool {
	return g.selector.Available()
}

// Acquire returns a usable key, asking the host selector for one first when
// none is configured.
func (g *Gate) Acquire(ctx context.Context) (string, error) {
	log := config.WithContext(ctx)

	if key := g.read(ctx); Usable(key) {
		g.setState(StatePresent)
		return strings.TrimSpace(key), nil
	}
	g.setState(StateMissing)

	if !g.selector.Available() {
		return "", ErrMissing
	}

	selected, err := g.selector.HasSelectedKey(ctx)
	if err != nil {
		log.WithError(err).Warn("credential selector check failed")
	}
	if !selected {
		if err := g.selector.OpenSelectKey(ctx); err != nil {
			log.WithError(err).Warn("credential selector failed")
			return "", ErrMissing
		}
	}

	if key := g.read(ctx); Usable(key) {
		g.setState(StatePresent)
		return strings.TrimSpace(key), nil
	}
	return "", ErrMissing
}

// Reject records that the backend refused the credential and re-opens the
// host selector. Best effort: selector failures are only logged.
func (g *Gate) Reject(ctx context.Context) {
	g.setState(StateMissing)
	if !g.selector.Available() {
		return
	}
	if clearer, ok := g.source.(Clearer); ok {
		clearer.Clear()
	}
	if err := g.selector.OpenSelectKey(ctx); err != nil {
		config.WithContext(ctx).WithError(err).Warn("credential selector failed after rejection")
	}
}

func (g *Gate) read(ctx context.Context) string {
	if g.source == nil {
		return ""
	}
	return g.source.APIKey(ctx)
}

func (g *Gate) setState(state State) {
	g.mu.Lock()
	g.state = state
	g.mu.Unlock()
}
