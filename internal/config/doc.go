// Package config loads, normalizes, and validates storyloom's TOML
// configuration.
//
// Configuration resolves from an explicit --config path, then
// ~/.config/storyloom/config.toml, then ./storyloom.toml, falling back to
// built-in defaults when no file exists. Environment variables
// STORYLOOM_BASE_URL and STORYLOOM_API_KEY override the service section so
// credentials can stay out of the file.
package config
