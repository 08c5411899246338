// Package synth builds an installer kernel and initrd for SUSE install
// trees, which ship neither.
//
// The kernel and install-initrd packages are located through the tree's
// ls-lR.gz listing, downloaded, and unpacked into a private staging
// directory. The install-initrd package carries a generic base initrd and,
// per kernel flavor, the list of modules the installer needs. Those modules
// are copied out of the kernel package into an overlay tree:
//
//	lib/modules/<release>-override-<flavor>/initrd/   module.config + modules
//	lib/modules/<release>-<build>-<flavor>/updates -> ../<release>-override-<flavor>
//	modules -> lib/modules/<release>-override-<flavor>/initrd
//
// depmod regenerates dependency data for the overlay, the overlay is
// appended to the base initrd as a newc cpio segment and the result is
// recompressed. The overlay is described as a Plan of mkdir, symlink and
// copy operations, and the external programs sit behind Toolchain, so each
// part can be tested without rpm2cpio, cpio or depmod installed.
//
// Every step is fatal on failure and the staging directory is removed
// whatever the outcome.
package synth
