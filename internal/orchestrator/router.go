// ABOUTME: Intent-to-route table with round-robin selection of agent URLs.
// ABOUTME: Unknown intents fall back to the default route.

package orchestrator

import (
	"strings"
	"sync/atomic"
)

// Agent routes.
const (
	RouteLiveAgent        = "live-agent"
	RouteStorytellerAgent = "storyteller-agent"
	RouteUINavigatorAgent = "ui-navigator-agent"
)

// DefaultIntents maps well-known intents to routes.
var DefaultIntents = map[string]string{
	"conversation":  RouteLiveAgent,
	"live":          RouteLiveAgent,
	"translation":   RouteLiveAgent,
	"voice":         RouteLiveAgent,
	"story":         RouteStorytellerAgent,
	"storytelling":  RouteStorytellerAgent,
	"media":         RouteStorytellerAgent,
	"navigation":    RouteUINavigatorAgent,
	"ui_navigation": RouteUINavigatorAgent,
	"ui_task":       RouteUINavigatorAgent,
}

// RouterConfig configures a Router. Intents extend or override DefaultIntents.
type RouterConfig struct {
	Intents      map[string]string
	Targets      map[string][]string
	DefaultRoute string
}

// Router resolves intents to routes and routes to agent URLs.
type Router struct {
	intents      map[string]string
	targets      map[string][]string
	next         map[string]*atomic.Uint64
	defaultRoute string
}

// NewRouter builds a router. The route table is fixed after construction.
func NewRouter(cfg RouterConfig) *Router {
	r := &Router{
		intents:      make(map[string]string, len(DefaultIntents)+len(cfg.Intents)),
		targets:      make(map[string][]string, len(cfg.Targets)),
		next:         make(map[string]*atomic.Uint64),
		defaultRoute: cfg.DefaultRoute,
	}
	if r.defaultRoute == "" {
		r.defaultRoute = RouteLiveAgent
	}
	for intent, route := range DefaultIntents {
		r.intents[intent] = route
	}
	for intent, route := range cfg.Intents {
		r.intents[strings.ToLower(intent)] = route
	}
	for route, urls := range cfg.Targets {
		var kept []string
		for _, u := range urls {
			if u = strings.TrimSpace(u); u != "" {
				kept = append(kept, u)
			}
		}
		if len(kept) > 0 {
			r.targets[route] = kept
			r.next[route] = &atomic.Uint64{}
		}
	}
	return r
}

// Resolve returns the route for intent.
func (r *Router) Resolve(intent string) string {
	if route, ok := r.intents[strings.ToLower(strings.TrimSpace(intent))]; ok {
		return route
	}
	return r.defaultRoute
}

// Target picks the next URL for route in round-robin order. It returns
// false when the route has no configured agent.
func (r *Router) Target(route string) (string, bool) {
	urls := r.targets[route]
	if len(urls) == 0 {
		return "", false
	}
	idx := r.next[route].Add(1) - 1
	return urls[idx%uint64(len(urls))], true
}
