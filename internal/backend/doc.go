// Package backend defines the pluggable "run this command, get these bytes"
// capability used by the execution engine, together with the registry that
// maps executor identifiers (the "@id" prefix of routed commands) to backends.
package backend
