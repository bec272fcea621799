// Package ir provides the canonical value tree, canonical encoding and hash
// primitives for the campaign ledger.
//
// This package contains values, record types and pure functions only. All
// other internal packages import ir; ir imports nothing internal, so the
// encoding rules that every hash depends on are defined in exactly one place.
//
// Key constraints:
//   - NO float types anywhere - numbers are int64
//   - Strings and object keys are NFC normalized before hashing
//   - Object keys are ordered byte-wise on their normalized UTF-8 form
//   - Null-valued object members are elided, never encoded
//   - All JSON tags use snake_case
package ir
