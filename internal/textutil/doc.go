// Package textutil provides small text helpers shared across packages:
// filesystem-safe names for derived artifacts and word tokenisation.
package textutil
