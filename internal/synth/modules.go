package synth

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// IndexModules maps each kernel module file name (*.ko) under root to its
// path. Walk order is lexical, so when a name appears in several
// directories the lexically first path wins.
func IndexModules(root string) (map[string]string, error) {
	index := make(map[string]string)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".ko") {
			return nil
		}
		if _, seen := index[d.Name()]; !seen {
			index[d.Name()] = p
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to index kernel modules: %w", err)
	}
	return index, nil
}

// ReadModuleList reads a module.list file: one module per line, blank lines
// ignored.
func ReadModuleList(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open module list: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	var modules []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if name := strings.TrimSpace(scanner.Text()); name != "" {
			modules = append(modules, name)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read module list: %w", err)
	}
	return modules, nil
}

// lookupModule finds name in index, accepting names listed without the
// .ko suffix.
func lookupModule(index map[string]string, name string) (string, string, bool) {
	if p, ok := index[name]; ok {
		return name, p, true
	}
	if !strings.HasSuffix(name, ".ko") {
		if p, ok := index[name+".ko"]; ok {
			return name + ".ko", p, true
		}
	}
	return "", "", false
}
