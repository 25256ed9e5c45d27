package queue

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFIFOOrder(t *testing.T) {
	q := New[int]()
	for i := 0; i < 10; i++ {
		if err := q.Push(i); err != nil {
			t.Fatalf("push: %v", err)
		}
	}
	for i := 0; i < 10; i++ {
		v, err := q.Pop()
		if err != nil {
			t.Fatalf("pop: %v", err)
		}
		if v != i {
			t.Fatalf("expected %d, got %d", i, v)
		}
	}
}

func TestPopBlocksUntilPush(t *testing.T) {
	q := New[string]()
	got := make(chan string, 1)
	go func() {
		v, err := q.Pop()
		if err != nil {
			t.Errorf("pop: %v", err)
			return
		}
		got <- v
	}()

	time.Sleep(20 * time.Millisecond)
	if err := q.Push("hello"); err != nil {
		t.Fatalf("push: %v", err)
	}

	select {
	case v := <-got:
		if v != "hello" {
			t.Fatalf("unexpected value %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not wake on push")
	}
}

func TestPopWhenGate(t *testing.T) {
	q := New[int]()
	var open atomic.Bool

	if err := q.Push(1); err != nil {
		t.Fatalf("push: %v", err)
	}

	got := make(chan int, 1)
	go func() {
		v, err := q.PopWhen(open.Load)
		if err != nil {
			t.Errorf("pop: %v", err)
			return
		}
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("gated pop consumed while gate closed")
	case <-time.After(50 * time.Millisecond):
	}

	open.Store(true)
	q.Wake()

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("gated pop did not wake after gate opened")
	}
}

func TestCloseWakesConsumers(t *testing.T) {
	q := New[int]()
	done := make(chan error, 1)
	go func() {
		_, err := q.Pop()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		if err != ErrClosed {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not wake on close")
	}

	if err := q.Push(1); err != ErrClosed {
		t.Fatalf("expected ErrClosed on push after close, got %v", err)
	}
}

func TestClear(t *testing.T) {
	q := New[int]()
	q.Push(1)
	q.Push(2)
	if n := q.Clear(); n != 2 {
		t.Fatalf("expected 2 cleared, got %d", n)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got %d", q.Len())
	}
}
