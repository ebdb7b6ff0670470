package synclog

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLReturnsNonNilDefault(t *testing.T) {
	if L() == nil {
		t.Fatalf("expected a non-nil default logger")
	}
}

func TestOrReturnsArgumentWhenNonNil(t *testing.T) {
	custom := logrus.New()
	if got := Or(custom); got != custom {
		t.Fatalf("expected Or to return the supplied logger")
	}
}

func TestOrFallsBackToDefault(t *testing.T) {
	if got := Or(nil); got != L() {
		t.Fatalf("expected Or(nil) to return the package default")
	}
}

func TestSetDefaultOverridesL(t *testing.T) {
	original := L()
	defer SetDefault(original)

	custom := logrus.New()
	SetDefault(custom)
	if L() != custom {
		t.Fatalf("expected SetDefault to change L()'s return value")
	}
}
