// Package radio defines the boundary between the proximity subsystem and the
// platform Bluetooth LE stack.
//
// The stack is consumed through two narrow interfaces:
//   - Central: scanning, connecting and GATT client operations
//   - Peripheral: a GATT server exposing one readable characteristic, plus advertising
//
// Everything the stack reports back (power state, scan results, connection
// lifecycle, GATT completions) arrives as an Event through a single handler,
// so the consuming role can route it through one dispatch entry point.
package radio
