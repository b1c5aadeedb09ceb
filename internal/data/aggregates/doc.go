// Package aggregates persists ledger state through gorm. Every write runs in
// its own transaction and reports outcome and latency through Hooks.
package aggregates
