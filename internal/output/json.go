package output

import (
	"encoding/json"
	"fmt"
)

// JSONFormatter formats results as JSON.
type JSONFormatter struct{}

// Format formats a Result as an indented JSON object.
func (f *JSONFormatter) Format(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal result to JSON: %w", err)
	}

	return string(data) + "\n", nil
}
