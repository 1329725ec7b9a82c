package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedIDGenerator(t *testing.T) {
	gen := NewFixedIDGenerator("req-123")

	assert.Equal(t, "req-123", gen.Generate())
	assert.Equal(t, "req-123", gen.Generate())

	// Empty id uses default
	assert.Equal(t, "test-request", NewFixedIDGenerator("").Generate())
}

func TestSequentialIDGenerator(t *testing.T) {
	gen := NewSequentialIDGenerator("req")

	assert.Equal(t, "req-1", gen.Generate())
	assert.Equal(t, "req-2", gen.Generate())

	gen.Reset()
	assert.Equal(t, "req-1", gen.Generate())
}

func TestSequentialIDGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequentialIDGenerator("req")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]bool)
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1000)
}
