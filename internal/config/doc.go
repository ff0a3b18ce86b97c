// Package config loads, normalizes, and validates vigil's TOML configuration.
//
// Defaults are applied first, then the file found on the search path (explicit
// path, ~/.config/vigil/config.toml, ./vigil.toml) is decoded on top, and
// finally environment fallbacks and path expansion run before validation.
// Callers receive a fully expanded Config and should not re-derive paths.
package config
