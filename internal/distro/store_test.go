package distro

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/anvil/internal/media"
)

func fedoraStore(params Params) Store {
	stores, _ := Candidates("fedora", params)
	return stores[0]
}

func TestFedoraAcquireKernel(t *testing.T) {
	tests := []struct {
		name    string
		variant string
		want    []string
	}{
		{name: "default", want: []string{"images/pxeboot/vmlinuz", "images/pxeboot/initrd.img"}},
		{name: "xen", variant: "xen", want: []string{"images/xen/vmlinuz", "images/xen/initrd.img"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher(t, "http://mirror.example/fedora/", map[string]string{
				tt.want[0]: "kernel",
				tt.want[1]: "initrd",
			})

			k, err := fedoraStore(Params{Variant: tt.variant}).AcquireKernel(context.Background(), f, nil)
			require.NoError(t, err)
			defer k.Remove()

			assert.Equal(t, tt.want, f.requested)
			assert.Equal(t, "method=http://mirror.example/fedora/", k.BootArg)

			kernel, err := os.ReadFile(k.KernelPath)
			require.NoError(t, err)
			assert.Equal(t, "kernel", string(kernel))

			initrd, err := os.ReadFile(k.InitrdPath)
			require.NoError(t, err)
			assert.Equal(t, "initrd", string(initrd))
		})
	}
}

func TestFedoraInitrdFailureRemovesKernel(t *testing.T) {
	f := newFakeFetcher(t, "http://mirror.example/fedora/", map[string]string{
		"images/pxeboot/vmlinuz": "kernel",
	})

	k, err := fedoraStore(Params{}).AcquireKernel(context.Background(), f, nil)
	require.Error(t, err)
	assert.Nil(t, k)
	assert.ErrorIs(t, err, media.ErrNotFound)

	require.Len(t, f.saved, 1)
	assert.NoFileExists(t, f.saved[0])
	assert.Empty(t, f.leftovers(t))
}

func TestFedoraKernelMissing(t *testing.T) {
	f := newFakeFetcher(t, "http://mirror.example/fedora/", nil)

	_, err := fedoraStore(Params{}).AcquireKernel(context.Background(), f, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, media.ErrNotFound)
	assert.Equal(t, []string{"images/pxeboot/vmlinuz"}, f.requested)
}

func TestBootDiskPaths(t *testing.T) {
	tests := []struct {
		store string
		path  string
	}{
		{store: "fedora", path: "images/boot.iso"},
		{store: "suse", path: "boot/boot.iso"},
		{store: "debian", path: "current/images/netboot/mini.iso"},
		{store: "mandriva", path: "install/images/boot.iso"},
	}

	for _, tt := range tests {
		t.Run(tt.store, func(t *testing.T) {
			f := newFakeFetcher(t, "nfs:server:/tree", map[string]string{tt.path: "iso"})
			stores, err := Candidates(tt.store, Params{})
			require.NoError(t, err)

			disk, err := stores[0].AcquireBootDisk(context.Background(), f, nil)
			require.NoError(t, err)
			defer disk.Remove()

			assert.Equal(t, []string{tt.path}, f.requested)
			assert.FileExists(t, disk.ISOPath)
		})
	}
}

func TestBootDiskVerification(t *testing.T) {
	f := newFakeFetcher(t, "http://mirror.example/fedora/", map[string]string{
		"images/boot.iso": "this is not an ISO9660 image",
	})

	_, err := fedoraStore(Params{VerifyISO: true}).AcquireBootDisk(context.Background(), f, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, media.ErrInvalidMedia)
	assert.Empty(t, f.leftovers(t), "rejected image is deleted")
}

func TestSUSEAcquireKernelDelegates(t *testing.T) {
	f := newFakeFetcher(t, "http://mirror.example/suse/", nil)
	want := &media.Kernel{KernelPath: "/var/tmp/anvil-vmlinuz.1", InitrdPath: "/var/tmp/anvil-initrd.img.2", BootArg: "install=http://mirror.example/suse/"}
	b := &fakeBuilder{kernel: want}

	stores, err := Candidates("suse", Params{Builder: b})
	require.NoError(t, err)

	got, err := stores[0].AcquireKernel(context.Background(), f, nil)
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, 1, b.calls)

	b.err = errors.New("depmod failed")
	_, err = stores[0].AcquireKernel(context.Background(), f, nil)
	assert.EqualError(t, err, "depmod failed")
}

func TestSUSEWithoutBuilder(t *testing.T) {
	stores, err := Candidates("suse", Params{})
	require.NoError(t, err)

	_, err = stores[0].AcquireKernel(context.Background(), newFakeFetcher(t, "x", nil), nil)
	assert.ErrorIs(t, err, media.ErrSynthesis)
}
