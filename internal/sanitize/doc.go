// Package sanitize neutralizes untrusted HTML before it is shown in a browser
// or handed to a publishing target.
//
// # Policy
//
// A [Policy] is a closed allowlist: a set of tag names and, per tag, the
// attribute names that may remain on it, plus a wildcard entry ("*") for
// attributes allowed everywhere. Tags that can execute script or load
// executable content are never members. href is only permitted on a and src
// only on img, and both values must pass [IsSafeURL].
//
// # Strategies
//
// Two strategies read the same Policy:
//
//   - tree: parses the input with golang.org/x/net/html, removes comments,
//     drops script and style with their content, unwraps every other
//     disallowed element (its children take its place), strips attributes
//     and forces rel="noopener noreferrer" on every link.
//   - text: an ordered pipeline of regular-expression rewrites over the raw
//     string, repeated until the output is stable.
//
// [StrategyAuto] uses the tree strategy and falls back to the text pipeline if
// the tree cannot be built. Neither path ever returns its input unmodified
// when it fails; the fallback for an unusable result is an empty string.
//
// # Concurrency
//
// The default policy is built once and never mutated. [SanitizeHTML] and
// [Sanitizer.Sanitize] keep no state between calls and may be called from any
// number of goroutines.
package sanitize
