// Package cli implements the eventhub command-line client: register, login,
// refresh, profile and logout against the REST API, with the session kept
// in a local SQLite file between invocations.
package cli
