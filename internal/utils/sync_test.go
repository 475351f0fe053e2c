package utils

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionalRWMutexSerializes(t *testing.T) {
	m := OptionalRWMutex{UseMutex: true}

	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Lock()
				counter++
				m.Unlock()
			}
		}()
	}
	wg.Wait()

	m.RLock()
	defer m.RUnlock()
	require.Equal(t, 8000, counter)
}

func TestOptionalRWMutexDisabled(t *testing.T) {
	m := OptionalRWMutex{}

	m.Lock()
	// a disabled mutex never blocks, even when locked twice
	m.Lock()
	m.RLock()
	m.RUnlock()
	m.Unlock()
	m.Unlock()

	require.True(t, m.Mutex.TryLock())
	m.Mutex.Unlock()
}
