package core

import "testing"

func TestVerdictCacheConsumeOnce(t *testing.T) {
	c := NewVerdictCache()
	c.Publish(1, DoneVerdict(true, Accepted, []CaseResult{{Ok: true, Status: Accepted}}))

	v, ok := c.Get(1)
	if !ok || v.Status != VerdictDone {
		t.Fatalf("first read: got ok=%v status=%v, want a Done verdict", ok, v.Status)
	}

	if _, ok := c.Get(1); ok {
		t.Fatalf("second read should miss after consume-on-read")
	}
}

func TestVerdictCacheQueuedDoesNotConsume(t *testing.T) {
	c := NewVerdictCache()
	c.Publish(2, QueuedVerdict())

	if _, ok := c.Get(2); !ok {
		t.Fatalf("expected queued entry to be present")
	}
	if _, ok := c.Get(2); !ok {
		t.Fatalf("queued read should not consume the entry")
	}
}

func TestVerdictCacheOverwriteOnTransition(t *testing.T) {
	c := NewVerdictCache()
	c.Publish(3, QueuedVerdict())
	c.Publish(3, ErrVerdict("boom"))

	v, ok := c.Get(3)
	if !ok || v.Status != VerdictError || v.Message != "boom" {
		t.Fatalf("got %+v ok=%v, want Error{boom}", v, ok)
	}
}

func TestVerdictCacheClear(t *testing.T) {
	c := NewVerdictCache()
	c.Publish(4, QueuedVerdict())
	c.Clear()
	if _, ok := c.Get(4); ok {
		t.Fatalf("expected empty cache after Clear")
	}
}
