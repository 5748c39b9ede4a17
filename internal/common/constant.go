package common

// AuthorizationHeaderName is the HTTP header and gRPC metadata key carrying
// the bearer token.
const AuthorizationHeaderName = "authorization"

// BearerPrefix precedes the token in the authorization value.
const BearerPrefix = "Bearer "

// OAuthStateCookieName holds the anti-CSRF state during the Google OAuth flow.
const OAuthStateCookieName = "eventhub_oauth_state"
