// Package log provides locq's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// standard library slog via a custom handler that preserves the
// formatter/outputs pipeline. This allows adoption of the slog ecosystem
// while keeping consistent output and behavior across the codebase.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("locqueue"))
//	l.Info("queue opened", log.Uint64("last_seq", 42))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, supporting JSON
// or text formatting and console or rotating-file outputs, plus optional
// field redaction and per-message sampling.
//
// # Interop
//
// To integrate with libraries expecting *log.Logger (Pebble among them), use
// ToStdLogger or RedirectStdLog.
package log
