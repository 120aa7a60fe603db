package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedIDGenerator_ReturnsSameID(t *testing.T) {
	gen := NewFixedIDGenerator("q-123")

	assert.Equal(t, "q-123", gen.Generate())
	assert.Equal(t, "q-123", gen.Generate())
}

func TestFixedIDGenerator_EmptyIDDefault(t *testing.T) {
	assert.Equal(t, "test-query-default", NewFixedIDGenerator("").Generate())
}

func TestSequenceIDGenerator(t *testing.T) {
	gen := NewSequenceIDGenerator("q")

	assert.Equal(t, "q-1", gen.Generate())
	assert.Equal(t, "q-2", gen.Generate())

	gen.Reset()
	assert.Equal(t, "q-1", gen.Generate())
}

func TestSequenceIDGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequenceIDGenerator("q")

	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
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

	assert.Len(t, seen, 1000, "ids must be unique")
}
