// Package config handles loading and validation of the capture library
// configuration from YAML files, with sane defaults for embedded use.
package config
