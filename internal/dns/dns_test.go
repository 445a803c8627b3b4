package dns

import (
	"context"
	"testing"
)

func TestLookupPassesThroughLiterals(t *testing.T) {
	for _, host := range []string{"127.0.0.1", "::1"} {
		ip, err := Lookup(host)
		if err != nil {
			t.Fatalf("Lookup(%q): %v", host, err)
		}
		if ip != host {
			t.Fatalf("Lookup(%q)=%q", host, ip)
		}
	}
}

func TestLookupLocalhost(t *testing.T) {
	ip, err := Lookup("localhost")
	if err != nil {
		t.Skipf("no local resolver: %v", err)
	}
	if ip == "" {
		t.Fatal("empty address")
	}
}

func TestLookupHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := LookupContext(ctx, "relay.invalid"); err == nil {
		t.Fatal("expected error from cancelled lookup")
	}
}
