// Package config holds the eventhub CLI settings: defaults overlaid with an
// optional JSON or YAML file. Command-line flags are applied by the cobra
// command tree on top of the loaded values.
package config
