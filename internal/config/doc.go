// Package config defines the application configuration structure and the
// loader that populates it from environment variables and config files.
package config
