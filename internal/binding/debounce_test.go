package binding

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestDebouncer_Coalesces(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { runs.Add(1) })
	defer d.Close()

	if !d.Trigger() {
		t.Fatal("first trigger not scheduled")
	}
	for i := 0; i < 3; i++ {
		if d.Trigger() {
			t.Error("trigger scheduled a second pending run")
		}
	}

	eventually(t, func() bool { return runs.Load() == 1 })
	if d.Pending() {
		t.Error("still pending after run")
	}

	if !d.Trigger() {
		t.Error("trigger after run not scheduled")
	}
	eventually(t, func() bool { return runs.Load() == 2 })
}

func TestDebouncer_CancelAndClose(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(20*time.Millisecond, func() { runs.Add(1) })

	d.Trigger()
	d.Cancel()
	d.Trigger()
	d.Close()
	if d.Trigger() {
		t.Error("closed debouncer accepted a trigger")
	}

	time.Sleep(60 * time.Millisecond)
	if n := runs.Load(); n != 0 {
		t.Errorf("runs = %d, want 0", n)
	}
}
