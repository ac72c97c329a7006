// Package config loads, normalizes, and validates mediarelay configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// MEDIARELAY_PUBSUB_TOKEN. A .env file in the working directory is loaded
// before the environment is consulted. The Config type centralizes every knob
// the scheduler, API, and CLI need: storage paths, the authoritative status
// channel, the subtitle trigger endpoint, and reconciliation timings.
//
// Components receive the Config explicitly at construction; nothing reads
// process-wide settings after Load returns.
package config
