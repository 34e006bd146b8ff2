package event

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type sampleEvent struct{ N int }

func TestFirePriorityOrder(t *testing.T) {
	m := NewManager()
	var order []int
	Subscribe(m, sampleEvent{}, 1, func(e Event) { order = append(order, 1) })
	Subscribe(m, sampleEvent{}, 10, func(e Event) { order = append(order, 10) })
	Subscribe(m, sampleEvent{}, 5, func(e Event) { order = append(order, 5) })

	m.Fire(sampleEvent{N: 42})

	assert.Equal(t, []int{10, 5, 1}, order)
}

func TestFireRecoversPanic(t *testing.T) {
	m := NewManager()
	Subscribe(m, sampleEvent{}, 0, func(e Event) { panic("boom") })
	var ran bool
	Subscribe(m, sampleEvent{}, -1, func(e Event) { ran = true })

	assert.NotPanics(t, func() { m.Fire(sampleEvent{}) })
	assert.True(t, ran)
}

func TestFireParallelRunsAsync(t *testing.T) {
	m := NewManager()
	var count int32
	done := make(chan struct{})
	Subscribe(m, sampleEvent{}, 0, func(e Event) {
		atomic.AddInt32(&count, 1)
		close(done)
	})

	m.FireParallel(sampleEvent{})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not run")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&count))
}

func TestDistinctEventTypesDoNotCollide(t *testing.T) {
	m := NewManager()
	var a, b int
	Subscribe(m, sampleEvent{}, 0, func(e Event) { a++ })
	Subscribe(m, DisconnectEvent{}, 0, func(e Event) { b++ })

	m.Fire(sampleEvent{})

	assert.Equal(t, 1, a)
	assert.Equal(t, 0, b)
}
