package session

import (
	"testing"
	"time"

	"github.com/pairforge/agent/internal/models"
)

func TestReconnectPolicyBounds(t *testing.T) {
	policy := newReconnectPolicy(3, 5*time.Second, 3*time.Second)

	for i := 0; i < 3; i++ {
		if _, ok := policy.Next(models.CloseConnectionLost); !ok {
			t.Fatalf("attempt %d unexpectedly exhausted", i+1)
		}
	}

	if _, ok := policy.Next(models.CloseConnectionLost); ok {
		t.Error("expected exhaustion after max attempts")
	}
	if policy.Attempts() != 3 {
		t.Errorf("expected 3 attempts consumed, got %d", policy.Attempts())
	}
}

func TestReconnectPolicyFloors(t *testing.T) {
	policy := newReconnectPolicy(10, 5*time.Second, 3*time.Second)

	wait, ok := policy.Next(models.CloseRestartRequired)
	if !ok {
		t.Fatal("unexpected exhaustion")
	}
	if wait < 5*time.Second {
		t.Errorf("restart-required wait %v below its settle floor", wait)
	}

	wait, ok = policy.Next(models.CloseConnectionLost)
	if !ok {
		t.Fatal("unexpected exhaustion")
	}
	if wait < 3*time.Second {
		t.Errorf("connection-lost wait %v below its settle floor", wait)
	}
}
