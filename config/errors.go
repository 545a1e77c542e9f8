package config

import "fmt"

// indicates that a required configuration key has no value
type MissingKeyError struct {
	Name string
}

func (e MissingKeyError) Error() string {
	return fmt.Sprintf("Missing expected configuration parameter: '%s'", e.Name)
}

// indicates that a configuration key has an unusable value
type InvalidValueError struct {
	Name  string
	Value string
}

func (e InvalidValueError) Error() string {
	return fmt.Sprintf("Invalid value for configuration parameter '%s': '%s'", e.Name, e.Value)
}
