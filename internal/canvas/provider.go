package canvas

import "sync"

// Provider hands out the current drawing surface and tells subscribers when
// it becomes available or is replaced (e.g. the WebView reloads).
type Provider struct {
	mu      sync.Mutex
	current Surface
	nextID  int
	subs    map[int]func(Surface)
}

func NewProvider() *Provider {
	return &Provider{subs: make(map[int]func(Surface))}
}

// Subscribe registers fn. If a surface is already mounted fn is called with
// it immediately. The returned func unsubscribes.
func (p *Provider) Subscribe(fn func(Surface)) (unsubscribe func()) {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	cur := p.current
	p.mu.Unlock()

	if cur != nil {
		fn(cur)
	}
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Mount installs s as the current surface and notifies subscribers.
func (p *Provider) Mount(s Surface) {
	p.mu.Lock()
	p.current = s
	subs := make([]func(Surface), 0, len(p.subs))
	for _, fn := range p.subs {
		subs = append(subs, fn)
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(s)
	}
}

// Current returns the mounted surface or nil.
func (p *Provider) Current() Surface {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
