package cache

import "errors"

const (
	// MaxCacheSize bounds the sum of all stored bodies.
	MaxCacheSize int64 = 1 << 20
	// MaxObjectSize bounds a single stored body.
	MaxObjectSize int64 = 100 << 10
)

var (
	ErrTooLarge = errors.New("cache: object exceeds max object size")
	ErrExists   = errors.New("cache: key already cached")
)

// Handle is a pinned reference to a cached body. The entry cannot be evicted
// until the handle is released.
type Handle struct {
	c        *LRU
	e        *entry
	released bool
}

func (h *Handle) Key() string {
	return h.e.key
}

// Body returns the cached bytes. Callers must not modify them.
func (h *Handle) Body() []byte {
	return h.e.body
}

func (h *Handle) Size() int64 {
	return h.e.size
}

// Release drops the pin. It is safe to call more than once; only the first
// call has an effect.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.c.Release(h)
}

type Stats struct {
	Entries        int   `json:"entries"`
	Bytes          int64 `json:"bytes"`
	Pinned         int   `json:"pinned"`
	MaxBytes       int64 `json:"maxBytes"`
	MaxObjectBytes int64 `json:"maxObjectBytes"`
}
