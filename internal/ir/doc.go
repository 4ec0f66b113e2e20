// Package ir provides the value model shared by every other package of the
// interpreter: JSON-like values, RFC 8785 canonical encoding, content
// identifiers, tetraplets, provenance and the payloads kept in CID stores.
//
// This package imports nothing internal. All other internal packages import
// ir, which keeps it the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Every CID is blake2b-256 over MarshalCanonical output, never over
//     json.Marshal output
//   - Object iteration order is always SortedKeys order
//   - All JSON tags use snake_case
package ir
