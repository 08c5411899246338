package distro

import (
	"context"
	"errors"

	"github.com/jbweber/anvil/internal/fetcher"
	"github.com/jbweber/anvil/internal/media"
	"github.com/jbweber/anvil/internal/progress"
)

// SUSE trees carry no installer kernel/initrd pair; the kernel is
// synthesized from the tree's packages by the configured KernelBuilder.
type SUSE struct {
	storeBase
}

// IsValid looks for directory.yast, present at the top of every SUSE tree.
func (s *SUSE) IsValid(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (bool, error) {
	return s.probe(ctx, f, "directory.yast", p, nil)
}

func (s *SUSE) AcquireKernel(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (*media.Kernel, error) {
	if s.params.Builder == nil {
		return nil, &media.Error{
			Kind: media.KindSynthesis,
			Op:   "acquire kernel",
			Err:  errors.New("no initrd builder configured"),
		}
	}
	return s.params.Builder.BuildKernel(ctx, f, p)
}

func (s *SUSE) AcquireBootDisk(ctx context.Context, f fetcher.Fetcher, p progress.Reporter) (*media.BootDisk, error) {
	return s.acquireBootDisk(ctx, f, "boot/boot.iso", p)
}
