package output

import (
	"bytes"
	"fmt"
	"os"
	"text/tabwriter"
)

// TableFormatter formats results as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// Format writes one row per artifact. Files that exist locally get their
// size; boot arguments and names get "-".
func (f *TableFormatter) Format(r *Result) (string, error) {
	type row struct{ artifact, value, size string }
	var rows []row

	if r.Distro != "" {
		rows = append(rows, row{"distro", r.Distro, "-"})
	}
	if k := r.Kernel; k != nil {
		rows = append(rows,
			row{"kernel", k.KernelPath, fileSize(k.KernelPath)},
			row{"initrd", k.InitrdPath, fileSize(k.InitrdPath)},
			row{"boot-arg", k.BootArg, "-"},
		)
	}
	if d := r.BootDisk; d != nil {
		rows = append(rows, row{"iso", d.ISOPath, fileSize(d.ISOPath)})
	}
	if len(rows) == 0 {
		return "No artifacts\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "ARTIFACT\tVALUE\tSIZE")
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r.artifact, r.value, r.size)
	}

	_ = w.Flush()
	return buf.String(), nil
}

func fileSize(path string) string {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return "-"
	}
	return formatSize(fi.Size())
}

// formatSize formats a byte count with a binary unit suffix.
// Examples: "512B", "4.0KiB", "12.5MiB", "1.2GiB"
func formatSize(n int64) string {
	if n < 0 {
		return "unknown"
	}

	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}

	div, exp := int64(unit), 0
	for m := n / unit; m >= unit && exp < 3; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGT"[exp])
}
