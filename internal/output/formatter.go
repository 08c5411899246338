// Package output provides formatters for displaying acquisition results
// in various formats (table, YAML, JSON, libvirt XML).
package output

import (
	"fmt"

	"github.com/jbweber/anvil/internal/media"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format for scripts and config management.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
	// FormatXML is a libvirt domain XML fragment ready to paste into a
	// guest definition.
	FormatXML Format = "xml"
)

// Result is what one acquisition produced. Exactly one of Kernel and
// BootDisk is set for acquisitions; neither is set for detection.
type Result struct {
	Location string          `json:"location" yaml:"location"`
	Distro   string          `json:"distro,omitempty" yaml:"distro,omitempty"`
	Kernel   *media.Kernel   `json:"kernel,omitempty" yaml:"kernel,omitempty"`
	BootDisk *media.BootDisk `json:"bootDisk,omitempty" yaml:"bootDisk,omitempty"`
}

// Formatter formats acquisition results for output.
type Formatter interface {
	Format(r *Result) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
	// Arch is the guest architecture written into XML <os> fragments.
	Arch string
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatXML:
		return &XMLFormatter{Arch: opts.Arch}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json, xml)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	f := Format(format)
	switch f {
	case FormatTable, FormatYAML, FormatJSON, FormatXML:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json, xml)", format)
	}
}
