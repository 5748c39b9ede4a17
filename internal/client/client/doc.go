// Package client talks to the eventhub REST API.
//
// HTTPClient is stateless with respect to tokens: callers pass the access or
// refresh token they hold, and services.AuthService decides when to refresh.
//
// Transport failures are reported as ErrUnavailable and 401 responses as
// ErrUnauthorized; both can be matched with errors.Is. Other non-2xx
// responses come back as *APIError carrying the server's message.
package client
