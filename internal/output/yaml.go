package output

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats results as YAML.
type YAMLFormatter struct{}

// Format formats a Result as a single YAML document.
func (f *YAMLFormatter) Format(r *Result) (string, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal result to YAML: %w", err)
	}

	return string(data), nil
}
