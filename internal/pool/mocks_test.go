package pool

import (
	"fmt"
	"io"
	"strings"

	"github.com/digitalocean/go-libvirt"
)

// mockLibvirtClient is an in-memory LibvirtClient.
type mockLibvirtClient struct {
	pools     map[string]map[string]*mockVolume // pool name -> volume name -> volume
	createErr map[string]error                  // volume name -> StorageVolCreateXML error
	uploadErr map[string]error                  // volume name -> StorageVolUpload error
	deleted   []string
	xml       []string
}

type mockVolume struct {
	name string
	path string
	data []byte
}

func newMockLibvirtClient(pools ...string) *mockLibvirtClient {
	m := &mockLibvirtClient{
		pools:     make(map[string]map[string]*mockVolume),
		createErr: make(map[string]error),
		uploadErr: make(map[string]error),
	}
	for _, p := range pools {
		m.pools[p] = make(map[string]*mockVolume)
	}
	return m
}

func (m *mockLibvirtClient) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	if _, ok := m.pools[name]; !ok {
		return libvirt.StoragePool{}, fmt.Errorf("storage pool not found: %s", name)
	}
	return libvirt.StoragePool{Name: name}, nil
}

func (m *mockLibvirtClient) StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error) {
	vols, ok := m.pools[pool.Name]
	if !ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage pool not found: %s", pool.Name)
	}
	if _, ok := vols[name]; !ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage volume not found: %s", name)
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: name}, nil
}

func (m *mockLibvirtClient) StorageVolCreateXML(pool libvirt.StoragePool, xml string, flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error) {
	vols, ok := m.pools[pool.Name]
	if !ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage pool not found: %s", pool.Name)
	}

	name := extractTagValue(xml, "name")
	if name == "" {
		return libvirt.StorageVol{}, fmt.Errorf("invalid volume XML: missing name")
	}
	if err := m.createErr[name]; err != nil {
		return libvirt.StorageVol{}, err
	}
	if _, ok := vols[name]; ok {
		return libvirt.StorageVol{}, fmt.Errorf("storage volume already exists: %s", name)
	}

	m.xml = append(m.xml, xml)
	vols[name] = &mockVolume{
		name: name,
		path: "/var/lib/libvirt/images/" + pool.Name + "/" + name,
	}
	return libvirt.StorageVol{Pool: pool.Name, Name: name}, nil
}

func (m *mockLibvirtClient) StorageVolDelete(vol libvirt.StorageVol, flags libvirt.StorageVolDeleteFlags) error {
	vols, ok := m.pools[vol.Pool]
	if !ok {
		return fmt.Errorf("storage pool not found: %s", vol.Pool)
	}
	if _, ok := vols[vol.Name]; !ok {
		return fmt.Errorf("storage volume not found: %s", vol.Name)
	}
	delete(vols, vol.Name)
	m.deleted = append(m.deleted, vol.Name)
	return nil
}

func (m *mockLibvirtClient) StorageVolGetPath(vol libvirt.StorageVol) (string, error) {
	v, err := m.volume(vol)
	if err != nil {
		return "", err
	}
	return v.path, nil
}

func (m *mockLibvirtClient) StorageVolUpload(vol libvirt.StorageVol, reader io.Reader, offset uint64, length uint64, flags libvirt.StorageVolUploadFlags) error {
	v, err := m.volume(vol)
	if err != nil {
		return err
	}
	if err := m.uploadErr[vol.Name]; err != nil {
		return err
	}

	data, err := io.ReadAll(io.LimitReader(reader, int64(length)))
	if err != nil {
		return fmt.Errorf("failed to read data: %w", err)
	}
	v.data = data
	return nil
}

func (m *mockLibvirtClient) volume(vol libvirt.StorageVol) (*mockVolume, error) {
	vols, ok := m.pools[vol.Pool]
	if !ok {
		return nil, fmt.Errorf("storage pool not found: %s", vol.Pool)
	}
	v, ok := vols[vol.Name]
	if !ok {
		return nil, fmt.Errorf("storage volume not found: %s", vol.Name)
	}
	return v, nil
}

// extractTagValue returns the text of the first <tag> element in xml.
func extractTagValue(xml, tag string) string {
	start := strings.Index(xml, "<"+tag+">")
	if start == -1 {
		return ""
	}
	start += len(tag) + 2
	end := strings.Index(xml[start:], "</"+tag+">")
	if end == -1 {
		return ""
	}
	return xml[start : start+end]
}
