package synth

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/jbweber/anvil/internal/logging"
)

// Toolchain runs the external programs the pipeline depends on.
type Toolchain interface {
	// Extract unpacks the payload of the package file pkg into dir.
	Extract(ctx context.Context, pkg, dir string) error

	// Depmod generates module dependency metadata under root for exactly
	// one kernel version, using systemMap as the symbol source.
	Depmod(ctx context.Context, root, systemMap, version string) error

	// AppendArchive appends files (relative to dir) to the newc cpio
	// archive at archive.
	AppendArchive(ctx context.Context, archive, dir string, files []string) error
}

// ExecToolchain runs rpm2cpio, cpio and depmod.
type ExecToolchain struct {
	RPM2CPIOCommand string
	CPIOCommand     string
	DepmodCommand   string
	Log             logrus.FieldLogger
}

// NewExecToolchain returns an ExecToolchain with the standard binaries.
func NewExecToolchain(log logrus.FieldLogger) *ExecToolchain {
	return &ExecToolchain{
		RPM2CPIOCommand: "rpm2cpio",
		CPIOCommand:     "cpio",
		DepmodCommand:   "depmod",
		Log:             logging.OrDiscard(log),
	}
}

func (t *ExecToolchain) log() logrus.FieldLogger {
	return logging.OrDiscard(t.Log)
}

// Extract runs `rpm2cpio <pkg> | cpio --quiet -idm` in dir.
func (t *ExecToolchain) Extract(ctx context.Context, pkg, dir string) error {
	convert := exec.CommandContext(ctx, t.RPM2CPIOCommand, pkg)
	unpack := exec.CommandContext(ctx, t.CPIOCommand, "--quiet", "-idm")
	unpack.Dir = dir

	var convertErr, unpackErr bytes.Buffer
	convert.Stderr = &convertErr
	unpack.Stderr = &unpackErr

	pipe, err := convert.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create %s pipe: %w", t.RPM2CPIOCommand, err)
	}
	unpack.Stdin = pipe

	t.log().WithFields(logrus.Fields{"package": filepath.Base(pkg), "dir": dir}).Debug("Extracting package")

	if err := convert.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", t.RPM2CPIOCommand, err)
	}
	if err := unpack.Start(); err != nil {
		_ = convert.Process.Kill()
		_ = convert.Wait()
		return fmt.Errorf("failed to start %s: %w", t.CPIOCommand, err)
	}

	// cpio holds its own copy of the read end now.
	_ = pipe.Close()

	waitUnpack := unpack.Wait()
	waitConvert := convert.Wait()
	if waitConvert != nil {
		return commandError(t.RPM2CPIOCommand, []string{pkg}, waitConvert, convertErr.String())
	}
	if waitUnpack != nil {
		return commandError(t.CPIOCommand, unpack.Args[1:], waitUnpack, unpackErr.String())
	}
	return nil
}

// Depmod runs `depmod -a -b <root> -F <systemMap> <version>`.
func (t *ExecToolchain) Depmod(ctx context.Context, root, systemMap, version string) error {
	args := []string{"-a", "-b", root, "-F", systemMap, version}
	t.log().WithField("version", version).Debug("Running depmod")

	out, err := exec.CommandContext(ctx, t.DepmodCommand, args...).CombinedOutput()
	if err != nil {
		return commandError(t.DepmodCommand, args, err, string(out))
	}
	return nil
}

// AppendArchive runs `cpio --quiet -o -H newc -A -F <archive>` in dir with
// the file list on stdin.
func (t *ExecToolchain) AppendArchive(ctx context.Context, archive, dir string, files []string) error {
	args := []string{"--quiet", "-o", "-H", "newc", "-A", "-F", archive}
	cmd := exec.CommandContext(ctx, t.CPIOCommand, args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(strings.Join(files, "\n") + "\n")
	t.log().WithField("files", len(files)).Debug("Appending overlay to initrd")

	out, err := cmd.CombinedOutput()
	if err != nil {
		return commandError(t.CPIOCommand, args, err, string(out))
	}
	return nil
}

func commandError(name string, args []string, err error, output string) error {
	output = strings.TrimSpace(output)
	if output == "" {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, output)
}

// ListTree returns every entry under dir as a "./"-prefixed relative path,
// starting with "." itself, in lexical walk order (the order `find .`
// produces for cpio).
func ListTree(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			files = append(files, ".")
			return nil
		}
		files = append(files, "./"+filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list overlay: %w", err)
	}
	return files, nil
}
