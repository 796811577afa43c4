package deadline

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestArmFiresAfterDuration(t *testing.T) {
	var fired int32
	dl := New()
	dl.Arm(10*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })

	if !dl.Armed() {
		t.Fatal("expected Armed() to report true right after Arm")
	}

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 1 {
		t.Fatal("callback never fired")
	}
}

func TestCancelPreventsFire(t *testing.T) {
	var fired int32
	dl := New()
	dl.Arm(10*time.Millisecond, func() { atomic.StoreInt32(&fired, 1) })
	dl.Cancel()

	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&fired) != 0 {
		t.Fatal("callback fired after Cancel")
	}
	if dl.Armed() {
		t.Fatal("expected Armed() to report false after Cancel")
	}
}

func TestRearmReplacesPreviousFire(t *testing.T) {
	var calls int32
	dl := New()
	dl.Arm(5*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	dl.Arm(20*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	time.Sleep(40 * time.Millisecond)
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("calls = %d, want exactly 1 (rearm should cancel the first)", calls)
	}
}
