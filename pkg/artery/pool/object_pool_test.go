package pool

import "testing"

type counter struct {
	resets int
}

func (c *counter) Reset() { c.resets++ }

func TestObjectPoolReusesReleasedInstances(t *testing.T) {
	p := NewObjectPool(1, func() *counter { return &counter{} })

	first := p.Acquire()
	p.Release(first)
	second := p.Acquire()

	if first != second {
		t.Fatal("expected Acquire to return the instance just Released")
	}
	if second.resets != 1 {
		t.Fatalf("expected Release to Reset the instance once, got %d", second.resets)
	}
}

func TestObjectPoolAllocatesFreshOnExhaustion(t *testing.T) {
	p := NewObjectPool(1, func() *counter { return &counter{} })

	a := p.Acquire()
	b := p.Acquire()
	if a == b {
		t.Fatal("expected a fresh instance when the pool is exhausted")
	}
}

func TestObjectPoolDropsReleasesPastCapacity(t *testing.T) {
	p := NewObjectPool(1, func() *counter { return &counter{} })

	a, b := p.Acquire(), p.Acquire()
	p.Release(a)
	p.Release(b)

	first := p.Acquire()
	second := p.Acquire()
	if first == second {
		t.Fatal("expected the second release to have been dropped, not queued twice")
	}
}
