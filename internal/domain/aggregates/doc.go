// Package aggregates defines the write boundaries the ledger relies on. A
// contract names the invariants its writes enforce atomically and says nothing
// about how they are stored.
package aggregates
