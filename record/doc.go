// Package record defines the persisted experiment record, the lease expiry
// policy, and the store contract the claim protocol is built on.
//
// The contract asks very little of a backend: atomic insert-if-absent and
// an atomic compare-and-swap keyed on the booking timestamp. A document
// store's conditional upsert, a key-value store's SETNX plus optimistic
// transaction, or a relational table with a primary key and a conditioned
// UPDATE all qualify. Stores weaker than that cannot back the protocol.
package record
