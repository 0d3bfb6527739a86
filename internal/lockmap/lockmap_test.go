package lockmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap_SerialisesSameKey(t *testing.T) {
	lm := New[string]()
	counter := 0

	wg := sync.WaitGroup{}

	for i := 0; i < 50; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			lm.Lock("key")
			counter++
			lm.Unlock("key")
		}()
	}

	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, lm.Len())
}

func TestMap_UnlockUnknownPanics(t *testing.T) {
	lm := New[int]()

	assert.Panics(t, func() {
		lm.Unlock(1)
	})
}
