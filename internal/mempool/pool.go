// Package mempool keeps size-classed buffers for the per-frame band
// conversions of the rectification stream.
package mempool

import (
	"sync"
)

const classStep = 1024

// sizeClass rounds n up to the next multiple of 1024 (minimum 1024).
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return (n + classStep - 1) / classStep * classStep
}

// SlicePool hands out []T buffers grouped by size class. The zero value is
// ready to use. Buffer contents are unspecified on Get.
type SlicePool[T any] struct {
	pools sync.Map // size class -> *sync.Pool
}

func (p *SlicePool[T]) pool(cls int) *sync.Pool {
	if sp, ok := p.pools.Load(cls); ok {
		return sp.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
	}
	sp, _ := p.pools.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]T, cls)
		return &buf
	}})
	return sp.(*sync.Pool) //nolint:forcetypeassert // only *sync.Pool is stored
}

// Get returns a buffer of length n. Release it with Put.
func (p *SlicePool[T]) Get(n int) []T {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	bp, ok := p.pool(cls).Get().(*[]T)
	if !ok || cap(*bp) < cls {
		return make([]T, n, cls)
	}
	return (*bp)[:n]
}

// Put returns buf to its size class. Buffers whose capacity is not a size
// class did not come from Get and are dropped, as is nil.
func (p *SlicePool[T]) Put(buf []T) {
	c := cap(buf)
	if c == 0 || c != sizeClass(c) {
		return
	}
	buf = buf[:c]
	p.pool(c).Put(&buf)
}

var float32s SlicePool[float32]

// GetFloat32 returns a float32 buffer of length n from the shared pool.
func GetFloat32(n int) []float32 { return float32s.Get(n) }

// PutFloat32 returns a buffer obtained from GetFloat32. Nil is ignored.
func PutFloat32(buf []float32) { float32s.Put(buf) }
