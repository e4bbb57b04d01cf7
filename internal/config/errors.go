package config

import "fmt"

// ValidationError describes one configuration problem detected by Validate:
// a bad path, a malformed date range, or an unknown field value (spec §7
// error kind 1, "Configuration" — fatal, surfaced immediately).
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}
