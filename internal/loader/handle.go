package loader

import "fmt"

// Handle 指向 arena 中的一个对象槽位。槽位复用时代数递增，旧句柄因此失效，
// 零值句柄永远无效。
type Handle struct {
	slot uint32
	gen  uint32
}

// IsZero 表示句柄未指向任何对象。
func (h Handle) IsZero() bool { return h.gen == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.slot, h.gen)
}

type arenaSlot struct {
	gen    uint32
	used   bool
	bundle *LoadedBundle
	path   string
}

// arena 由 Loader.mu 保护。
type arena struct {
	slots []arenaSlot
	free  []uint32
}

func (a *arena) alloc(b *LoadedBundle, path string) Handle {
	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, arenaSlot{})
		idx = uint32(len(a.slots) - 1)
	}
	s := &a.slots[idx]
	s.gen++
	s.used = true
	s.bundle = b
	s.path = path
	return Handle{slot: idx, gen: s.gen}
}

func (a *arena) get(h Handle) (*arenaSlot, bool) {
	if h.gen == 0 || int(h.slot) >= len(a.slots) {
		return nil, false
	}
	s := &a.slots[h.slot]
	if !s.used || s.gen != h.gen {
		return nil, false
	}
	return s, true
}

func (a *arena) release(h Handle) {
	s, ok := a.get(h)
	if !ok {
		return
	}
	s.used = false
	s.bundle = nil
	s.path = ""
	a.free = append(a.free, h.slot)
}

func (a *arena) live() int {
	return len(a.slots) - len(a.free)
}
