// Package infra contains technical adapters: stores, Redis locks,
// notifiers, metrics exporters and Sentry. These packages depend only on
// the interfaces defined in the core packages.
package infra
