package routing

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	// ErrEmptyTable is returned when a table is built without routes
	ErrEmptyTable = errors.New("route table is empty")

	// ErrInvalidBackend is returned when a backend address is not an absolute http(s) URL
	ErrInvalidBackend = errors.New("invalid backend address")
)

// Table is an immutable mapping from role to backend base URL.
// It is safe for concurrent use.
type Table struct {
	routes      map[string]*url.URL
	defaultRole string
}

// NewTable validates routes and builds a table. The input map is copied.
func NewTable(routes map[string]string, defaultRole string) (*Table, error) {
	if len(routes) == 0 {
		return nil, ErrEmptyTable
	}

	parsed := make(map[string]*url.URL, len(routes))
	for role, raw := range routes {
		if strings.TrimSpace(role) == "" {
			return nil, fmt.Errorf("%w: empty role for %q", ErrInvalidBackend, raw)
		}
		u, err := parseBackend(raw)
		if err != nil {
			return nil, fmt.Errorf("role %q: %w", role, err)
		}
		parsed[role] = u
	}

	if _, ok := parsed[defaultRole]; !ok {
		return nil, fmt.Errorf("default role %q is not in the route table", defaultRole)
	}

	return &Table{routes: parsed, defaultRole: defaultRole}, nil
}

func parseBackend(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(raw), "/"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackend, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q needs an http or https scheme", ErrInvalidBackend, raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrInvalidBackend, raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("%w: %q must not carry a query or fragment", ErrInvalidBackend, raw)
	}
	return u, nil
}

// Resolve returns a copy of the backend URL for role.
func (t *Table) Resolve(role string) (*url.URL, bool) {
	u, ok := t.routes[role]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

// DefaultRole is the role used when a request names none.
func (t *Table) DefaultRole() string {
	return t.defaultRole
}

// Roles returns all roles in sorted order.
func (t *Table) Roles() []string {
	roles := make([]string, 0, len(t.routes))
	for role := range t.routes {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.routes)
}
