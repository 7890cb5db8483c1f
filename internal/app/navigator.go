package app

import "sync"

// Navigator tracks the route a browser reports and holds the redirect the
// next response should carry.
type Navigator struct {
	mu       sync.Mutex
	route    string
	redirect string
}

func (n *Navigator) CurrentRoute() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.route
}

// SetRoute records the route and reports whether it changed.
func (n *Navigator) SetRoute(route string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if route == n.route {
		return false
	}
	n.route = route
	return true
}

// Redirect queues a redirect. The browser is assumed to follow it, so the
// current route moves as well.
func (n *Navigator) Redirect(route string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.redirect = route
	n.route = route
}

// PendingRedirect returns the queued redirect without consuming it.
func (n *Navigator) PendingRedirect() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.redirect
}

// TakeRedirect returns and clears the queued redirect.
func (n *Navigator) TakeRedirect() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	r := n.redirect
	n.redirect = ""
	return r
}
