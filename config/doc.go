// Package config loads netbridge settings from NETBRIDGE_* environment
// variables, optionally seeded from a .env file.
package config
