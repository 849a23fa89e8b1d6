// Package cli implements gatewayctl, the operator command line for a running
// realtime gateway.
//
// Command tree:
//
//	gatewayctl
//	├── submit FILE          post a client envelope to /api/requests
//	├── tasks list           list active tasks
//	├── tasks get ID         show one task
//	├── tasks dispatches ID  show the persisted dispatch history of a task
//	├── media create         queue a simulated video job
//	├── media get ID...      show media jobs
//	├── replay-key FILE      print the replay key and fingerprint of an envelope
//	└── token                mint a bearer token from the gateway's JWT secret
//
// Remote commands read --gateway (or $GATEWAYCTL_URL) and send --token (or
// $GATEWAYCTL_TOKEN) as a bearer token.
package cli
