package clock

import (
	"testing"
	"time"
)

func TestMock_Advance(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMock(start)

	m.Advance(90 * time.Second)

	if got := m.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, start.Add(90*time.Second))
	}
}

func TestMock_After(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMock(start)

	select {
	case fired := <-m.After(5 * time.Second):
		if !fired.Equal(start.Add(5 * time.Second)) {
			t.Errorf("After fired at %v, want %v", fired, start.Add(5*time.Second))
		}
	default:
		t.Fatal("After() channel should fire immediately")
	}

	sleeps := m.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 5*time.Second {
		t.Errorf("Sleeps() = %v, want [5s]", sleeps)
	}
}

func TestReal_Now(t *testing.T) {
	before := time.Now()
	got := Real{}.Now()
	if got.Before(before) {
		t.Errorf("Real.Now() = %v, before %v", got, before)
	}
}
