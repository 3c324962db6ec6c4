// Package router resolves a method and path to a registered handler. Patterns are
// slash-separated; a segment written ":name" captures one non-empty path segment.
package router

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
)

// ErrInvalidRoute is returned by Register for an unusable method or pattern.
var ErrInvalidRoute = errors.New("invalid route")

const paramPrefix = ":"

// Params maps parameter names to the path segments they captured.
type Params map[string]string

// Route is one registered (method, pattern) pair.
type Route[H any] struct {
	Method  string
	Pattern string
	Handler H

	segments []string
	hasParam bool
}

// Match is the result of a successful lookup.
type Match[H any] struct {
	Handler H
	Params  Params
	Pattern string
}

// Router keeps routes in registration order. It is safe for concurrent use, including
// registration while serving.
type Router[H any] struct {
	mu     sync.RWMutex
	routes []*Route[H]
	index  map[string]int
}

// New creates an empty Router.
func New[H any]() *Router[H] {
	return &Router[H]{index: make(map[string]int)}
}

func routeKey(method, pattern string) string {
	return method + " " + pattern
}

// Register adds a route. Registering the same method and pattern again replaces the
// handler and keeps the route's original position.
func (r *Router[H]) Register(method, pattern string, handler H) error {
	route, err := compile[H](method, pattern)
	if err != nil {
		return err
	}
	route.Handler = handler

	r.mu.Lock()
	defer r.mu.Unlock()

	key := routeKey(method, pattern)
	if i, ok := r.index[key]; ok {
		r.routes[i] = route
		return nil
	}
	r.index[key] = len(r.routes)
	r.routes = append(r.routes, route)
	return nil
}

// MustRegister is Register for static route tables; it panics on a bad route.
func (r *Router[H]) MustRegister(method, pattern string, handler H) {
	if err := r.Register(method, pattern, handler); err != nil {
		panic(err)
	}
}

func (r *Router[H]) GET(pattern string, handler H) error {
	return r.Register(http.MethodGet, pattern, handler)
}

func (r *Router[H]) POST(pattern string, handler H) error {
	return r.Register(http.MethodPost, pattern, handler)
}

func (r *Router[H]) PUT(pattern string, handler H) error {
	return r.Register(http.MethodPut, pattern, handler)
}

func (r *Router[H]) DELETE(pattern string, handler H) error {
	return r.Register(http.MethodDelete, pattern, handler)
}

func compile[H any](method, pattern string) (*Route[H], error) {
	if strings.TrimSpace(method) == "" {
		return nil, fmt.Errorf("%w: empty method", ErrInvalidRoute)
	}
	if pattern == "" {
		return nil, fmt.Errorf("%w: empty pattern for %s", ErrInvalidRoute, method)
	}

	segments := strings.Split(pattern, "/")
	seen := make(map[string]struct{})
	hasParam := false
	for i, seg := range segments {
		name, ok := strings.CutPrefix(seg, paramPrefix)
		if !ok {
			continue
		}
		if name == "" {
			return nil, fmt.Errorf("%w: %s %q: segment %d has an empty parameter name", ErrInvalidRoute, method, pattern, i)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%w: %s %q: parameter %q repeated", ErrInvalidRoute, method, pattern, name)
		}
		seen[name] = struct{}{}
		hasParam = true
	}

	return &Route[H]{
		Method:   method,
		Pattern:  pattern,
		segments: segments,
		hasParam: hasParam,
	}, nil
}

// Match finds the handler for method and path. A parameter-free route equal to path
// wins outright; otherwise routes are tried in registration order and the first whose
// segments all line up is returned. path must already be stripped of its query.
func (r *Router[H]) Match(method, path string) (Match[H], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i, ok := r.index[routeKey(method, path)]; ok && !r.routes[i].hasParam {
		rt := r.routes[i]
		return Match[H]{Handler: rt.Handler, Params: Params{}, Pattern: rt.Pattern}, true
	}

	segments := strings.Split(path, "/")
	for _, rt := range r.routes {
		if rt.Method != method {
			continue
		}
		if params, ok := rt.bind(segments); ok {
			return Match[H]{Handler: rt.Handler, Params: params, Pattern: rt.Pattern}, true
		}
	}

	var zero Match[H]
	return zero, false
}

func (rt *Route[H]) bind(segments []string) (Params, bool) {
	if len(segments) != len(rt.segments) {
		return nil, false
	}

	params := Params{}
	for i, want := range rt.segments {
		got := segments[i]
		if name, ok := strings.CutPrefix(want, paramPrefix); ok {
			if got == "" {
				return nil, false
			}
			params[name] = got
			continue
		}
		if want != got {
			return nil, false
		}
	}
	return params, true
}

// Routes returns a copy of the route table in registration order.
func (r *Router[H]) Routes() []Route[H] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Route[H], 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, *rt)
	}
	return out
}

// Len returns the number of registered routes.
func (r *Router[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.routes)
}
