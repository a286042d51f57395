package controlpoint

import "fmt"

// ConfigError reports an invalid option detected at construction. These
// are programmer errors and fatal; nothing downstream repairs a bad
// configuration.
type ConfigError struct {
	Option string
	Reason string
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid control point option %s: %s", e.Option, e.Reason)
}
