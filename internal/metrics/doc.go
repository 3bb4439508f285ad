// Package metrics holds the process-wide gauge registry the collector
// writes into and the publisher serializes.
//
// All series are registered once by New. Set upserts one label tuple of a
// named series; the last write wins. Writes are safe from any number of
// goroutines. Set panics on an unknown series name or a label tuple of the
// wrong arity: both are programming errors, never caused by remote input.
//
// The registry never expires entries. A target that stops answering keeps
// its last published values until a later cycle overwrites them.
package metrics
