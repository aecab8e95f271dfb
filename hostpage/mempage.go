package hostpage

import "sync"

// MemPage is an in-memory Page backed by a plain byte slice, used by the
// smoke-test harness and by the cache's own tests in place of a real Xen
// grant mapping.
type MemPage struct {
	mu   sync.Mutex
	id   uint64
	data []byte
	fail bool
}

// NewMemPage allocates a page of the given size with the given identity.
func NewMemPage(id uint64, size int) *MemPage {
	return &MemPage{id: id, data: make([]byte, size)}
}

// ID implements Page.
func (p *MemPage) ID() uint64 {
	return p.id
}

// WithBytes implements Page.
func (p *MemPage) WithBytes(fn func([]byte) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail {
		return ErrMappingFailed
	}
	return fn(p.data)
}

// SetFailMapping forces the next WithBytes calls to fail, simulating a
// host that has revoked the grant backing this page.
func (p *MemPage) SetFailMapping(fail bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = fail
}

// Reassign gives the page a new identity and contents without changing
// its underlying buffer size, simulating the host recycling a physical
// page for a different loan.
func (p *MemPage) Reassign(id uint64, contents []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.id = id
	copy(p.data, contents)
}
