package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	t.Parallel()

	km := newKeyedMutex()
	var counter int

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release := km.Lock("ctr-1")
			defer release()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
}

func TestKeyedMutex_DifferentKeysDoNotBlock(t *testing.T) {
	t.Parallel()

	km := newKeyedMutex()
	releaseA := km.Lock("a")
	defer releaseA()

	done := make(chan struct{})
	go func() {
		release := km.Lock("b")
		release()
		close(done)
	}()
	<-done
}

func TestKeyedMutex_EntriesAreReleased(t *testing.T) {
	t.Parallel()

	km := newKeyedMutex()
	release := km.Lock("ctr-1")
	release()

	km.mu.Lock()
	defer km.mu.Unlock()
	assert.Empty(t, km.locks)
}
