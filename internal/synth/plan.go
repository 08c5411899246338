package synth

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/otiai10/copy"
)

// OpKind is the kind of a filesystem operation in a Plan.
type OpKind int

const (
	OpMkdir OpKind = iota
	OpSymlink
	OpCopy
)

func (k OpKind) String() string {
	switch k {
	case OpMkdir:
		return "mkdir"
	case OpSymlink:
		return "symlink"
	case OpCopy:
		return "copy"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// Op is one filesystem operation. Path is slash-separated and relative to
// the root the plan is applied to. Source is the symlink target for
// OpSymlink and the absolute source file for OpCopy.
type Op struct {
	Kind   OpKind
	Path   string
	Source string
}

func (o Op) String() string {
	switch o.Kind {
	case OpSymlink:
		return fmt.Sprintf("symlink %s -> %s", o.Path, o.Source)
	case OpCopy:
		return fmt.Sprintf("copy %s <- %s", o.Path, o.Source)
	default:
		return fmt.Sprintf("%s %s", o.Kind, o.Path)
	}
}

// Plan is an ordered list of filesystem operations building a tree.
type Plan struct {
	Ops []Op
}

func (p *Plan) Mkdir(rel string) {
	p.Ops = append(p.Ops, Op{Kind: OpMkdir, Path: rel})
}

func (p *Plan) Symlink(target, rel string) {
	p.Ops = append(p.Ops, Op{Kind: OpSymlink, Path: rel, Source: target})
}

func (p *Plan) Copy(src, rel string) {
	p.Ops = append(p.Ops, Op{Kind: OpCopy, Path: rel, Source: src})
}

// Apply performs every operation under root, in order, stopping at the
// first failure.
func (p *Plan) Apply(root string) error {
	for _, op := range p.Ops {
		dst, err := resolve(root, op.Path)
		if err != nil {
			return err
		}

		switch op.Kind {
		case OpMkdir:
			err = os.MkdirAll(dst, 0755)
		case OpSymlink:
			err = os.Symlink(op.Source, dst)
		case OpCopy:
			err = copy.Copy(op.Source, dst)
		default:
			err = fmt.Errorf("unknown operation kind %d", int(op.Kind))
		}
		if err != nil {
			return fmt.Errorf("failed to %s: %w", op, err)
		}
	}
	return nil
}

// resolve joins rel onto root, refusing paths that climb out of it.
func resolve(root, rel string) (string, error) {
	clean := path.Clean(rel)
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("plan path %q escapes the overlay root", rel)
	}
	return filepath.Join(root, filepath.FromSlash(clean)), nil
}

// OverlaySkeleton lays out the module overlay grafted onto the base initrd:
//
//	lib/modules/<override>/initrd/module.config
//	lib/modules/<version>/updates -> ../<override>
//	modules -> lib/modules/<override>/initrd
func OverlaySkeleton(v KernelVersion, moduleConfig string) *Plan {
	override := v.Override()
	modDir := path.Join("lib/modules", override, "initrd")
	depDir := path.Join("lib/modules", v.Version())

	p := &Plan{}
	p.Mkdir(modDir)
	p.Mkdir(depDir)
	p.Symlink("../"+override, path.Join(depDir, "updates"))
	p.Symlink(path.Join("lib/modules", override, "initrd"), "modules")
	p.Copy(moduleConfig, path.Join(modDir, "module.config"))
	return p
}

// OverlayModules copies each listed module into the override module
// directory. Names missing from index are returned, not planned.
func OverlayModules(v KernelVersion, modules []string, index map[string]string) (*Plan, []string) {
	modDir := path.Join("lib/modules", v.Override(), "initrd")

	p := &Plan{}
	var missing []string
	for _, name := range modules {
		file, src, ok := lookupModule(index, name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		p.Copy(src, path.Join(modDir, file))
	}
	return p, missing
}
