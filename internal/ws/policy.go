package ws

import (
	"strings"
	"sync"
)

// Policy holds the relay's content and block rules.
type Policy struct {
	mu        sync.RWMutex
	sensitive []string
	blocks    map[string]map[string]struct{}
}

func NewPolicy(sensitiveWords []string) *Policy {
	p := &Policy{blocks: make(map[string]map[string]struct{})}
	for _, w := range sensitiveWords {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			p.sensitive = append(p.sensitive, w)
		}
	}
	return p
}

// Sensitive reports whether content contains a configured word.
func (p *Policy) Sensitive(content string) bool {
	lc := strings.ToLower(content)
	for _, w := range p.sensitive {
		if strings.Contains(lc, w) {
			return true
		}
	}
	return false
}

// Block makes owner reject messages from blocked.
func (p *Policy) Block(owner, blocked string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	set := p.blocks[owner]
	if set == nil {
		set = make(map[string]struct{})
		p.blocks[owner] = set
	}
	set[blocked] = struct{}{}
}

func (p *Policy) Unblock(owner, blocked string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.blocks[owner], blocked)
}

// Blocked reports whether recipient refuses messages from sender.
func (p *Policy) Blocked(recipient, sender string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.blocks[recipient][sender]
	return ok
}
