package dummy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Object kinds, also the directory names under the base directory.
const (
	kindStemcell = "stemcells"
	kindVM       = "vms"
	kindDisk     = "disks"
	kindSnapshot = "snapshots"
)

// Stemcell is an uploaded image.
type Stemcell struct {
	CID             string                 `json:"cid"`
	ImagePath       string                 `json:"image_path"`
	CloudProperties map[string]interface{} `json:"cloud_properties"`
	CreatedAt       time.Time              `json:"created_at"`
}

// VM is a created virtual machine.
type VM struct {
	CID             string                 `json:"cid"`
	AgentID         string                 `json:"agent_id"`
	StemcellCID     string                 `json:"stemcell_cid"`
	CloudProperties map[string]interface{} `json:"cloud_properties"`
	Networks        map[string]interface{} `json:"networks"`
	Environment     map[string]interface{} `json:"env"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	DiskCIDs        []string               `json:"disk_cids"`
	Reboots         int                    `json:"reboots"`
	CreatedAt       time.Time              `json:"created_at"`
}

// Disk is a persistent disk, optionally attached to a VM.
type Disk struct {
	CID       string    `json:"cid"`
	SizeMiB   int64     `json:"size"`
	VMCID     string    `json:"vm_cid,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a point-in-time copy of a disk.
type Snapshot struct {
	CID       string    `json:"cid"`
	DiskCID   string    `json:"disk_cid"`
	CreatedAt time.Time `json:"created_at"`
}

// State is the file-backed object store.
type State struct {
	dir string
}

// NewState returns a store rooted at dir, creating the directory layout.
func NewState(dir string) (*State, error) {
	if dir == "" {
		return nil, fmt.Errorf("state directory is required")
	}
	for _, kind := range []string{kindStemcell, kindVM, kindDisk, kindSnapshot} {
		if err := os.MkdirAll(filepath.Join(dir, kind), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}
	return &State{dir: dir}, nil
}

// Dir returns the base directory.
func (s *State) Dir() string {
	return s.dir
}

// validCID reports whether cid can name a state file.
func validCID(cid string) bool {
	return cid != "" && cid != "." && cid != ".." && !strings.ContainsAny(cid, `/\`)
}

func (s *State) path(kind, cid string) string {
	return filepath.Join(s.dir, kind, cid+".json")
}

// load reads an object. It reports false when the object does not exist.
func (s *State) load(kind, cid string, v interface{}) (bool, error) {
	if !validCID(cid) {
		return false, nil
	}
	data, err := os.ReadFile(s.path(kind, cid))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s/%s: %w", kind, cid, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse %s/%s: %w", kind, cid, err)
	}
	return true, nil
}

// save writes an object atomically.
func (s *State) save(kind, cid string, v interface{}) error {
	if !validCID(cid) {
		return fmt.Errorf("invalid cid %q", cid)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %w", kind, cid, err)
	}

	tmp, err := os.CreateTemp(filepath.Join(s.dir, kind), "."+cid+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s/%s: %w", kind, cid, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s/%s: %w", kind, cid, err)
	}
	if err := os.Rename(tmp.Name(), s.path(kind, cid)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to store %s/%s: %w", kind, cid, err)
	}
	return nil
}

// remove deletes an object. It reports false when nothing was there.
func (s *State) remove(kind, cid string) (bool, error) {
	if !validCID(cid) {
		return false, nil
	}
	err := os.Remove(s.path(kind, cid))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete %s/%s: %w", kind, cid, err)
	}
	return true, nil
}

// list returns the sorted CIDs of every object of a kind.
func (s *State) list(kind string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.dir, kind))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	var cids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		cids = append(cids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(cids)
	return cids, nil
}

// VMs returns every VM in the store.
func (s *State) VMs() ([]*VM, error) {
	cids, err := s.list(kindVM)
	if err != nil {
		return nil, err
	}
	vms := make([]*VM, 0, len(cids))
	for _, cid := range cids {
		var vm VM
		ok, err := s.load(kindVM, cid, &vm)
		if err != nil {
			return nil, err
		}
		if ok {
			vms = append(vms, &vm)
		}
	}
	return vms, nil
}

// Disks returns every disk in the store.
func (s *State) Disks() ([]*Disk, error) {
	cids, err := s.list(kindDisk)
	if err != nil {
		return nil, err
	}
	disks := make([]*Disk, 0, len(cids))
	for _, cid := range cids {
		var d Disk
		ok, err := s.load(kindDisk, cid, &d)
		if err != nil {
			return nil, err
		}
		if ok {
			disks = append(disks, &d)
		}
	}
	return disks, nil
}
