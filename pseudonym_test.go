package dkaudit

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatientNumberAssigner(t *testing.T) {
	a := NewPatientNumberAssigner()

	h1, h2 := "hash-one", "hash-two"

	first := a.Assign(&h1)
	require.NotNil(t, first)
	assert.Equal(t, 1, *first)

	second := a.Assign(&h2)
	require.NotNil(t, second)
	assert.Equal(t, 2, *second)

	// Same hash always maps to the same number.
	again := a.Assign(&h1)
	require.NotNil(t, again)
	assert.Equal(t, *first, *again)

	assert.Equal(t, 2, a.Count())
}

func TestPatientNumberAssignerAnonymous(t *testing.T) {
	a := NewPatientNumberAssigner()

	assert.Nil(t, a.Assign(nil))
	empty := ""
	assert.Nil(t, a.Assign(&empty))
	assert.Equal(t, 0, a.Count())
}

func TestPatientNumberAssignerConcurrent(t *testing.T) {
	a := NewPatientNumberAssigner()

	hashes := make([]string, 5)
	for i := range hashes {
		hashes[i] = fmt.Sprintf("hash-%d", i)
	}

	const workers = 50
	results := make([][]int, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			nums := make([]int, len(hashes))
			for i := range hashes {
				nums[i] = *a.Assign(&hashes[i])
			}
			results[w] = nums
		}(w)
	}
	wg.Wait()

	assert.Equal(t, len(hashes), a.Count())
	// Every worker saw the same number for the same hash, and distinct
	// hashes never collided.
	for w := 1; w < workers; w++ {
		assert.Equal(t, results[0], results[w])
	}
	seen := make(map[int]bool)
	for _, n := range results[0] {
		assert.False(t, seen[n], "number %d assigned twice", n)
		seen[n] = true
	}
}

func TestBasicPatientHash(t *testing.T) {
	pepper := []byte("unit-test-pepper")

	hash := BasicPatientHash("9434765919", pepper)
	assert.Len(t, hash, 64)

	// Deterministic and case-insensitive over the identifier.
	assert.Equal(t, hash, BasicPatientHash("9434765919", pepper))
	assert.Equal(t, BasicPatientHash("ABC123", pepper), BasicPatientHash("abc123", pepper))

	// Sensitive to identifier and pepper.
	assert.NotEqual(t, hash, BasicPatientHash("9434765918", pepper))
	assert.NotEqual(t, hash, BasicPatientHash("9434765919", []byte("other-pepper")))
}

func TestSecurePatientHash(t *testing.T) {
	pepper := []byte("unit-test-pepper")

	hash := SecurePatientHash("9434765919", pepper)
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, SecurePatientHash("9434765919", pepper))
	assert.NotEqual(t, hash, SecurePatientHash("9434765918", pepper))
	assert.NotEqual(t, hash, BasicPatientHash("9434765919", pepper))
}
