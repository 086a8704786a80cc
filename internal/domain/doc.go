// Package domain holds the core types shared across the notification engine:
// campaign state, subscriber suppression state, queue items, and the domain
// events that trigger one-off notifications.
//
// This package has no dependencies beyond the standard library so it can be
// imported by every layer (services, stores, workers) without dragging in
// database drivers or HTTP clients.
package domain
