// Copyright 2024-2026 Aiku AI

// Package bridge is the synchronization engine: it normalizes native
// platform events into canonical sync events, relays them to the other
// platform in arrival order, and keeps the identity store consistent
// with what was actually delivered.
//
// Each direction of the bridge runs its own orchestrator with a bounded
// queue. Media transfers start as soon as an event is queued and run
// concurrently, but dispatch stays strictly sequential per direction so
// destination ordering matches source ordering.
package bridge
