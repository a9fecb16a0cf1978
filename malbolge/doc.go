// Package malbolge implements the exotic virtual machine used by Apophis.
//
// This package contains:
//   - the ternary word model and the crazy operation
//   - the canonical decode and encryption tables
//   - the program loader with padding of unused memory
//   - the step interpreter with self-modifying code cells
//
// Machines share nothing but the read-only tables, so independent
// machines may run on separate goroutines.
package malbolge
