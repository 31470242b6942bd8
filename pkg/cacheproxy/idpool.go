package cacheproxy

import (
	"strconv"
	"sync"

	"github.com/jnovack/http-cache-proxy/pkg/store"
)

const (
	reqPrefix    = "request"
	staPrefix    = "response"
	nameDelim    = "_"
	idPoolRefill = 100
)

// idPool maintains a pool of decimal ids not currently occupying a
// cache slot. draw takes the pool's own mu; refill does not lock and
// is called either from draw or before the pool is shared.
type idPool struct {
	mu   sync.Mutex
	next []uint64
}

// draw removes and returns one id, refilling first if the pool is
// empty.
func (p *idPool) draw(s *store.Store) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.next) == 0 {
		if err := p.refill(s); err != nil {
			return "", err
		}
	}
	id := p.next[0]
	p.next = p.next[1:]
	return strconv.FormatUint(id, 10), nil
}

// refill scans the store for the highest id in use and appends the
// next idPoolRefill decimal ids to the pool. On overflow (the highest
// id plus the refill batch wraps past the uint64 range — practically
// unreachable, but the original implementation treats it as a
// corruption/attack signal) it wipes the cache and restarts
// allocation from zero, matching the "id overflow or collision" error
// path.
func (p *idPool) refill(s *store.Store) error {
	names, err := s.Names()
	if err != nil {
		return err
	}
	var maxID uint64
	for _, name := range names {
		id, ok := idFromFilename(name)
		if !ok {
			continue
		}
		n, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			continue
		}
		if n > maxID {
			maxID = n
		}
	}
	overflow := false
	batch := make([]uint64, 0, idPoolRefill)
	for i := uint64(1); i <= idPoolRefill; i++ {
		if maxID+i < maxID {
			overflow = true
			break
		}
		batch = append(batch, maxID+i)
	}
	if overflow {
		if err := s.RemoveAll(); err != nil {
			return err
		}
		batch = batch[:0]
		for i := uint64(0); i < idPoolRefill; i++ {
			batch = append(batch, i)
		}
	}
	p.next = batch
	return nil
}

func idFromFilename(name string) (string, bool) {
	for i := 0; i < len(name); i++ {
		if name[i] == '_' {
			return name[i+1:], true
		}
	}
	return "", false
}

func reqName(id string) string { return reqPrefix + nameDelim + id }
func staName(id string) string { return staPrefix + nameDelim + id }
