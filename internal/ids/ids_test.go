package ids

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7_ValidFormat(t *testing.T) {
	id := UUIDv7{}.Generate()

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, id)
}

func TestUUIDv7_Concurrent(t *testing.T) {
	const goroutines = 100

	out := make(chan string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out <- UUIDv7{}.Generate()
		}()
	}
	wg.Wait()
	close(out)

	seen := make(map[string]bool)
	for id := range out {
		require.False(t, seen[id], "duplicate id generated")
		seen[id] = true
	}
	assert.Len(t, seen, goroutines)
}

func TestFixed_Sequential(t *testing.T) {
	gen := NewFixed("n-1", "n-2")

	assert.Equal(t, "n-1", gen.Generate())
	assert.Equal(t, "n-2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() })
}

func TestGeneratorInterface(t *testing.T) {
	var _ Generator = UUIDv7{}
	var _ Generator = (*Fixed)(nil)
}
