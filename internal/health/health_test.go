package health

import (
	"context"
	"testing"
)

func TestRegistryEmpty(t *testing.T) {
	r := NewRegistry()
	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("empty registry should be healthy")
	}
	if len(statuses) != 0 {
		t.Fatalf("expected 0 statuses, got %d", len(statuses))
	}
}

func TestRegistryAllHealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("datamart", func(_ context.Context) Status {
		return Status{Name: "datamart", Healthy: true}
	})
	r.Register("models", func(_ context.Context) Status {
		return Status{Name: "models", Healthy: true, Detail: "2 artifacts"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if !healthy {
		t.Fatal("all-healthy registry should report healthy")
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Name != "datamart" || statuses[1].Name != "models" {
		t.Fatalf("statuses out of registration order: %+v", statuses)
	}
}

func TestRegistryOneUnhealthy(t *testing.T) {
	r := NewRegistry()
	r.Register("datamart", func(_ context.Context) Status {
		return Status{Name: "datamart", Healthy: true}
	})
	r.Register("models", func(_ context.Context) Status {
		return Status{Name: "models", Healthy: false, Detail: "artifacts not loaded"}
	})

	healthy, statuses := r.CheckAll(context.Background())
	if healthy {
		t.Fatal("registry with an unhealthy checker should report unhealthy")
	}
	if statuses[1].Detail != "artifacts not loaded" {
		t.Fatalf("unexpected detail: %q", statuses[1].Detail)
	}
}

func TestRegistryCancelledContext(t *testing.T) {
	called := false
	r := NewRegistry()
	r.Register("datamart", func(_ context.Context) Status {
		called = true
		return Status{Name: "datamart", Healthy: true}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	healthy, statuses := r.CheckAll(ctx)
	if healthy {
		t.Fatal("cancelled context should report unhealthy")
	}
	if called {
		t.Fatal("checker should not run after cancellation")
	}
	if len(statuses) != 1 || statuses[0].Healthy {
		t.Fatalf("unexpected statuses: %+v", statuses)
	}
}
