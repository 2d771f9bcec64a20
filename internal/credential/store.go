package credential

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Store is an in-memory, settable credential source seeded from configuration.
type Store struct {
	mu  sync.RWMutex
	key string
}

func NewStore(initial string) *Store {
	return &Store{key: initial}
}

func (s *Store) APIKey(context.Context) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.key
}

func (s *Store) Set(key string) {
	s.mu.Lock()
	s.key = strings.TrimSpace(key)
	s.mu.Unlock()
}

func (s *Store) Clear() {
	s.Set("")
}

// PromptSelector asks for a key on a terminal and writes it to a Store.
type PromptSelector struct {
	in    *bufio.Reader
	out   io.Writer
	store *Store
}

func NewPromptSelector(in *bufio.Reader, out io.Writer, store *Store) *PromptSelector {
	return &PromptSelector{in: in, out: out, store: store}
}

func (p *PromptSelector) Available() bool { return true }

func (p *PromptSelector) HasSelectedKey(ctx context.Context) (bool, error) {
	return Usable(p.store.APIKey(ctx)), nil
}

func (p *PromptSelector) OpenSelectKey(context.Context) error {
	fmt.Fprint(p.out, "\nAn API key is required. Paste your key and press Enter: ")
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read api key: %w", err)
	}
	key := strings.TrimSpace(line)
	if !Usable(key) {
		return ErrMissing
	}
	p.store.Set(key)
	return nil
}

// PendingSelector is used when the user is on the other side of an HTTP API:
// opening the selector only raises a flag that clients observe and clear by
// submitting a key.
type PendingSelector struct {
	store *Store

	mu      sync.RWMutex
	pending bool
}

func NewPendingSelector(store *Store) *PendingSelector {
	return &PendingSelector{store: store}
}

func (p *PendingSelector) Available() bool { return true }

func (p *PendingSelector) HasSelectedKey(ctx context.Context) (bool, error) {
	return Usable(p.store.APIKey(ctx)), nil
}

func (p *PendingSelector) OpenSelectKey(context.Context) error {
	p.mu.Lock()
	p.pending = true
	p.mu.Unlock()
	return nil
}

// Pending reports whether a key selection has been requested and not yet answered.
func (p *PendingSelector) Pending() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pending
}

// Provide stores a user-supplied key and clears the pending request.
func (p *PendingSelector) Provide(key string) error {
	if !Usable(key) {
		return ErrMissing
	}
	p.store.Set(key)
	p.mu.Lock()
	p.pending = false
	p.mu.Unlock()
	return nil
}
