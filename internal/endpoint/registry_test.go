package endpoint

import (
	"errors"
	"strings"
	"testing"
)

func TestNewRegistrySortsByName(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(map[string]string{
		"LI7810_B": "192.168.0.11",
		"LI7810_A": " 192.168.0.10 ",
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	all := r.All()
	if len(all) != 2 || all[0].Name != "LI7810_A" || all[1].Name != "LI7810_B" {
		t.Fatalf("unexpected endpoints: %+v", all)
	}
	if all[0].Address != "192.168.0.10" {
		t.Fatalf("address not trimmed: %q", all[0].Address)
	}
	if ep, ok := r.Lookup("LI7810_B"); !ok || ep.Address != "192.168.0.11" {
		t.Fatalf("Lookup = %+v, %v", ep, ok)
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Fatal("Lookup(missing) should fail")
	}
}

func TestNewRegistryErrors(t *testing.T) {
	t.Parallel()
	if _, err := NewRegistry(nil); !errors.Is(err, ErrNoEndpoints) {
		t.Fatalf("err = %v, want ErrNoEndpoints", err)
	}

	_, err := NewRegistry(map[string]string{
		"ok":      "10.0.0.1",
		"no_addr": "",
		"blank":   "   ",
	})
	if err == nil {
		t.Fatal("expected error for missing addresses")
	}
	for _, want := range []string{`"no_addr"`, `"blank"`} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q should mention %s", err, want)
		}
	}
}

func TestAllReturnsCopy(t *testing.T) {
	t.Parallel()
	r, err := NewRegistry(map[string]string{"a": "10.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}
	all := r.All()
	all[0].Address = "mutated"
	if r.All()[0].Address != "10.0.0.1" {
		t.Fatal("registry must not expose its backing slice")
	}
}
