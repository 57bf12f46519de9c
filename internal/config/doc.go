// Package config handles configuration loading for vitrine.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from VITRINE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/vitrine/config.yaml
//  3. ~/.config/vitrine/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${VITRINE_JWT_SECRET}"
//
// Unset variables expand to the empty string.
//
// # Durations
//
// editor.session_ttl and dedupe.ttl accept Go duration strings such as "30m".
//
// # Required Fields
//
// database.path and storage.uploads_dir must be set. Everything else has a
// default; see applyDefaults.
package config
