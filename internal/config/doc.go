// Package config loads locq configuration from file and environment.
//
// Precedence, lowest to highest: built-in defaults, config file (JSON or
// YAML by extension), LOCQ_* environment variables, command-line flags.
package config
