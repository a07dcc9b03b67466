// Package ir provides the property value types shared by every layer of the
// clockwork runtime.
//
// This package contains value definitions and their encodings only. All
// other internal packages import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types - machine properties are integers, strings or booleans
//   - Null is an explicit value, never a Go nil
//   - Names are NFC normalized before they are used as registry keys
package ir
