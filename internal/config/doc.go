// Package config loads, validates, and provides access to Vocalis
// configuration. Configuration lives in a TOML file; Load overlays it on
// built-in defaults and expands all path fields.
package config
