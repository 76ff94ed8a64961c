// Package endpoint holds the static instrument-name to address mapping.
package endpoint

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrNoEndpoints = errors.New("no endpoints configured")

// Endpoint is one instrument reachable on the bus.
type Endpoint struct {
	Name    string
	Address string
}

func (e Endpoint) String() string { return e.Name + "@" + e.Address }

// Registry is immutable after NewRegistry and safe for concurrent use.
type Registry struct {
	eps []Endpoint
}

// NewRegistry validates addrs (name -> address) and returns a registry
// sorted by name. Every invalid entry is reported in one joined error.
func NewRegistry(addrs map[string]string) (*Registry, error) {
	if len(addrs) == 0 {
		return nil, ErrNoEndpoints
	}
	names := make([]string, 0, len(addrs))
	for name := range addrs {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	eps := make([]Endpoint, 0, len(names))
	for _, name := range names {
		n := strings.TrimSpace(name)
		a := strings.TrimSpace(addrs[name])
		switch {
		case n == "":
			errs = append(errs, errors.New("endpoint with empty name"))
		case a == "":
			errs = append(errs, fmt.Errorf("endpoint %q: missing address", n))
		default:
			eps = append(eps, Endpoint{Name: n, Address: a})
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &Registry{eps: eps}, nil
}

// All returns a copy of the endpoints, sorted by name.
func (r *Registry) All() []Endpoint {
	if r == nil {
		return nil
	}
	return append([]Endpoint(nil), r.eps...)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.eps)
}

// Lookup finds an endpoint by name.
func (r *Registry) Lookup(name string) (Endpoint, bool) {
	if r == nil {
		return Endpoint{}, false
	}
	i := sort.Search(len(r.eps), func(i int) bool { return r.eps[i].Name >= name })
	if i < len(r.eps) && r.eps[i].Name == name {
		return r.eps[i], true
	}
	return Endpoint{}, false
}
