package events

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_EmitReachesAllSubscribers(t *testing.T) {
	bus := NewBus()

	var got []string
	bus.Subscribe(func(name string, _ Progress) {
		got = append(got, name)
	})

	var deltas []int64
	bus.Subscribe(func(_ string, p Progress) {
		deltas = append(deltas, p.Bytes)
	})

	bus.Emit(UploadProgress, Progress{UUID: "u", Bytes: 10, From: "sync"})
	bus.Emit(DownloadProgress, Progress{UUID: "u", Bytes: 20, From: "sync"})

	assert.Equal(t, []string{UploadProgress, DownloadProgress}, got)
	assert.Equal(t, []int64{10, 20}, deltas)
}

func TestBus_EmitWithoutSubscribers(t *testing.T) {
	bus := NewBus()

	// Must not panic.
	bus.Emit(UploadProgressSeperate, Progress{UUID: "u", Bytes: 1, From: "other"})
}

func TestBus_ConcurrentEmit(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	var total int64

	bus.Subscribe(func(_ string, p Progress) {
		mu.Lock()
		defer mu.Unlock()
		total += p.Bytes
	})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			bus.Emit(DownloadProgressSeperate, Progress{UUID: "u", Bytes: 5, From: "download"})
		}()
	}

	wg.Wait()
	assert.Equal(t, int64(100), total)
}
