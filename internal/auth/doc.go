// Package auth identifies the actor behind an API request.
//
// # JWT Tokens
//
// Clients send an HS256 bearer token signed with the configured jwt_secret.
// The "sub" claim is the actor ID and an optional "roles" claim lists roles.
// Secrets shorter than 32 bytes are rejected at startup.
//
// # Anonymous Requests
//
// Most endpoints work without an actor: reads resolve against the store context
// in the query string. Custom theme endpoints wrap their handlers in
// RequireActor, which answers 401 when no actor is attached.
//
// # Development Mode
//
// When no secret is configured the middleware trusts the X-Actor-ID header.
// A warning is logged at startup because any client can claim any identity.
package auth
