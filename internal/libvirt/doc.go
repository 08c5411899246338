// Package libvirt provides a client wrapper for interacting with libvirt
// and the XML fragments that attach installation media to a guest.
//
// This package wraps github.com/digitalocean/go-libvirt to provide:
//   - Connection management (connect, disconnect, ping)
//   - <os> and cdrom <disk> generation from acquired media via libvirtxml
//
// Connection Management:
//
//	client, err := libvirt.Connect("", 0)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	if err := client.Ping(); err != nil {
//	    return err
//	}
//
// Install Fragments:
//
//	k, err := install.AcquireKernel(ctx, "http://mirror/fedora/", nil)
//	if err != nil {
//	    return err
//	}
//	xml, err := libvirt.MarshalFragment("os", libvirt.InstallOS(k, "x86_64"))
//
// Consumer-Side Interfaces:
//
// This package does not define interfaces. Consumers (internal/pool) define
// their own interfaces listing only the operations they need, which
// *libvirt.Libvirt satisfies implicitly.
package libvirt
