// Package resolve decides which copy of a theme file wins.
//
// A request is checked against an ordered list of strategies:
//
//  1. StoreTier: the store's working copy (nested unzippedTheme/, then a legacy
//     root-level copy, then the nested path even if it does not exist yet)
//  2. ActorTier: the actor's own working copy, used when no store is given
//  3. CanonicalTier: the package's extracted code, read-only
//
// SaveEdit always writes into the nested folder of the store or actor copy.
// SafeJoin is the traversal guard shared with the serve package.
package resolve
