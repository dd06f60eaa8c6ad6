// Package providers keeps the named CPI executables a director can talk to.
//
// A Registry is built from config.Config with a Factory that decides how
// each cpi.ExternalCpi is wired (identity, logging, telemetry, journal).
// Passing Registry.Reload to a config.Watcher keeps it in sync with the
// config file.
package providers
