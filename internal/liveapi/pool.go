package liveapi

const poolChunkSize = 128

// Pool hands out zeroed *T whose addresses stay valid until the next Reset, so that they can be stored in maps
// keyed by SSA value. The zero Pool is ready to use.
//
// Reset keeps the chunks, so a Pool reused for one function after another stops allocating once it has grown to
// the largest function seen.
type Pool[T any] struct {
	chunks    [][]T
	allocated int
}

// Allocated returns the number of T handed out since the last Reset.
func (p *Pool[T]) Allocated() int {
	return p.allocated
}

// Chunks returns the number of chunks backing the pool, including the ones not in use since the last Reset.
func (p *Pool[T]) Chunks() int {
	return len(p.chunks)
}

// Allocate returns a zero T from the pool.
func (p *Pool[T]) Allocate() *T {
	chunk, i := p.allocated/poolChunkSize, p.allocated%poolChunkSize
	if chunk == len(p.chunks) {
		p.chunks = append(p.chunks, make([]T, poolChunkSize))
	}
	p.allocated++
	return &p.chunks[chunk][i]
}

// Reset invalidates every pointer returned by Allocate and makes their memory available again.
func (p *Pool[T]) Reset() {
	for chunk := 0; chunk*poolChunkSize < p.allocated; chunk++ {
		clear(p.chunks[chunk][:min(poolChunkSize, p.allocated-chunk*poolChunkSize)])
	}
	p.allocated = 0
}
