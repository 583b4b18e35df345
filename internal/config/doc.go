// Package config loads the settings shared by the chat backend and the tool
// server from a YAML or JSON file, .env files and environment variables.
package config
