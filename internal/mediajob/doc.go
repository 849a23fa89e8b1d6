// ABOUTME: Package mediajob models asynchronous media generation jobs.
// ABOUTME: Jobs either complete immediately (fallback) or follow a simulated timeline.

// Package mediajob tracks video generation jobs requested by the storyteller
// agent. No real provider is called: fallback jobs are created already
// completed, and simulated jobs move through queued, running and a terminal
// state on timers driven by an injected clock. Terminal jobs are swept lazily
// once they outlive the retention window.
package mediajob
