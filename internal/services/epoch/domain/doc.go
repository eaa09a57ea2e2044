// Package domain defines the epoch model and its pure lifecycle rules.
//
// An epoch is a time-boxed unit of social presence. Its phase is derived
// entirely from the on-chain flags and timestamps carried by the snapshot,
// never from display metadata, so the same inputs always produce the same
// phase no matter where the computation runs.
package domain
