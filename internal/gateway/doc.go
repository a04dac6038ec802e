// Package gateway is the routing layer in front of the engine. It turns
// messages published on "queue/commandId[/timeoutSeconds]" topics with
// "@executor command" payloads into engine requests, resolving the executor
// through the backend registry.
package gateway
