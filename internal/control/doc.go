// Package control is the synchronous control plane in front of the task
// registry, license gate, and dispatcher. Every mutating operation here
// is a single call: validate against the license, mutate the registry,
// persist the whole-registry snapshot, and wake the dispatcher.
package control
