package container_test

import (
	"testing"

	"github.com/julienflot/mini-kvm/internal/container"
)

func TestVecAppendGrows(t *testing.T) {
	t.Parallel()

	v := container.NewVec[int]()
	for i := 0; i < 10; i++ {
		v.Append(i)
	}

	if v.Len() != 10 {
		t.Fatalf("Len() = %d, want 10", v.Len())
	}

	for i := 0; i < 10; i++ {
		if got := v.At(i); got != i {
			t.Errorf("At(%d) = %d, want %d", i, got, i)
		}
	}
}

func TestVecPop(t *testing.T) {
	t.Parallel()

	v := container.NewVec[string]()
	v.Append("a")
	v.Append("b")
	v.Pop()

	if v.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", v.Len())
	}

	if got := v.At(0); got != "a" {
		t.Errorf("At(0) = %q, want %q", got, "a")
	}
}

func TestVecPopEmptyIsNoop(t *testing.T) {
	t.Parallel()

	v := container.NewVec[int]()
	v.Pop()

	if v.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", v.Len())
	}
}
