package dummy

import (
	"errors"
	"os"

	"github.com/openfroyo/externalcpi/pkg/cpi"
	"github.com/openfroyo/externalcpi/pkg/cpi/protocol"
)

func (s *Server) currentVM(_ *protocol.RawRequest, _ *callLog) (interface{}, error) {
	return s.currentVMID, nil
}

func (s *Server) ping(_ *protocol.RawRequest, _ *callLog) (interface{}, error) {
	return "pong", nil
}

func (s *Server) createStemcell(req *protocol.RawRequest, log *callLog) (interface{}, error) {
	var imagePath string
	var props map[string]interface{}
	if err := arg(req, 0, &imagePath); err != nil {
		return nil, err
	}
	if err := arg(req, 1, &props); err != nil {
		return nil, err
	}

	if _, err := os.Stat(imagePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, failf(cpi.TypeCloudError, false, "Stemcell image `%s' not found", imagePath)
		}
		return nil, err
	}

	stemcell := &Stemcell{
		CID:             s.newID(),
		ImagePath:       imagePath,
		CloudProperties: props,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.state.save(kindStemcell, stemcell.CID, stemcell); err != nil {
		return nil, err
	}

	log.printf("created stemcell %s from %s", stemcell.CID, imagePath)
	return stemcell.CID, nil
}

func (s *Server) deleteStemcell(req *protocol.RawRequest, log *callLog) (interface{}, error) {
	var cid string
	if err := arg(req, 0, &cid); err != nil {
		return nil, err
	}

	removed, err := s.state.remove(kindStemcell, cid)
	if err != nil {
		return nil, err
	}
	if removed {
		log.printf("deleted stemcell %s", cid)
	}
	return nil, nil
}

func (s *Server) createVM(req *protocol.RawRequest, log *callLog) (interface{}, error) {
	var (
		agentID     string
		stemcellCID string
		props       map[string]interface{}
		networks    map[string]interface{}
		diskCIDs    []string
		env         map[string]interface{}
	)
	for i, target := range []interface{}{&agentID, &stemcellCID, &props, &networks, &diskCIDs, &env} {
		if err := arg(req, i, target); err != nil {
			return nil, err
		}
	}

	if fail, _ := props[FailCreateProperty].(bool); fail {
		return nil, failf(cpi.TypeVMCreationFailed, true, "VM creation for agent `%s' failed on request", agentID)
	}

	var stemcell Stemcell
	found, err := s.state.load(kindStemcell, stemcellCID, &stemcell)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, failf(cpi.TypeVMCreationFailed, false, "Stemcell `%s' not found", stemcellCID)
	}

	vm := &VM{
		CID:             s.newID(),
		AgentID:         agentID,
		StemcellCID:     stemcellCID,
		CloudProperties: props,
		Networks:        networks,
		Environment:     env,
		DiskCIDs:        []string{},
		CreatedAt:       s.now().UTC(),
	}

	disks := make([]*Disk, 0, len(diskCIDs))
	for _, diskCID := range diskCIDs {
		var d Disk
		found, err := s.state.load(kindDisk, diskCID, &d)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, diskNotFound(diskCID)
		}
		if d.VMCID != "" {
			return nil, failf(cpi.TypeCloudError, false, "Disk `%s' is already attached to VM `%s'", diskCID, d.VMCID)
		}
		d.VMCID = vm.CID
		disks = append(disks, &d)
		vm.DiskCIDs = append(vm.DiskCIDs, diskCID)
	}

	if err := s.state.save(kindVM, vm.CID, vm); err != nil {
		return nil, err
	}
	for _, d := range disks {
		if err := s.state.save(kindDisk, d.CID, d); err != nil {
			return nil, err
		}
	}

	log.printf("created vm %s for agent %s", vm.CID, agentID)
	return vm.CID, nil
}

func (s *Server) loadVM(cid string) (*VM, error) {
	var vm VM
	found, err := s.state.load(kindVM, cid, &vm)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, vmNotFound(cid)
	}
	return &vm, nil
}

func (s *Server) loadDisk(cid string) (*Disk, error) {
	var d Disk
	found, err := s.state.load(kindDisk, cid, &d)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, diskNotFound(cid)
	}
	return &d, nil
}

func (s *Server) deleteVM(req *protocol.RawRequest, log *callLog) (interface{}, error) {
	var cid string
	if err := arg(req, 0, &cid); err != nil {
		return nil, err
	}

	vm, err := s.loadVM(cid)
	if err != nil {
		return nil, err
	}

	for _, diskCID := range vm.DiskCIDs {
		var d Disk
		found, err := s.state.load(kindDisk, diskCID, &d)
		if err != nil {
			return nil, err
		}
		if found && d.VMCID == cid {
			d.VMCID = ""
			if err := s.state.save(kindDisk, d.CID, &d); err != nil {
				return nil, err
			}
		}
	}

	if _, err := s.state.remove(kindVM, cid); err != nil {
		return nil, err
	}
	log.printf("deleted vm %s", cid)
	return nil, nil
}

func (s *Server) hasVM(req *protocol.RawRequest, _ *callLog) (interface{}, error) {
	var cid string
	if err := arg(req, 0, &cid); err != nil {
		return nil, err
	}

	var vm VM
	return s.state.load(kindVM, cid, &vm)
}

func (s *Server) rebootVM(req *protocol.RawRequest, log *callLog) (interface{}, error) {
	var cid string
	if err := arg(req, 0, &cid); err != nil {
		return nil, err
	}

	vm, err := s.loadVM(cid)
	if err != nil {
		return nil, err
	}
	vm.Reboots++
	if err := s.state.save(kindVM, cid, vm); err != nil {
		return nil, err
	}

	log.printf("rebooted vm %s", cid)
	return nil, nil
}

func (s *Server) setVMMetadata(req *protocol.RawRequest, _ *callLog) (interface{}, error) {
	var cid string
	var metadata map[string]interface{}
	if err := arg(req, 0, &cid); err != nil {
		return nil, err
	}
	if err := arg(req, 1, &metadata); err != nil {
		return nil, err
	}

	vm, err := s.loadVM(cid)
	if err != nil {
		return nil, err
	}
	vm.Metadata = metadata
	return nil, s.state.save(kindVM, cid, vm)
}

func (s *Server) configureNetworks(req *protocol.RawRequest, _ *callLog) (interface{}, error) {
	var cid string
	if err := arg(req, 0, &cid); err != nil {
		return nil, err
	}
	if _, err := s.loadVM(cid); err != nil {
		return nil, err
	}
	return nil, failf(cpi.TypeNotImplemented, false, "configure_networks is not supported, recreate VM `%s' instead", cid)
}

func (s *Server) createDisk(req *protocol.RawRequest, log *callLog) (interface{}, error) {
	var size int64
	var vmCID *string
	if err := arg(req, 0, &size); err != nil {
		return nil, err
	}
	if err := arg(req, 1, &vmCID); err != nil {
		return nil, err
	}

	if size <= 0 {
		return nil, failf(cpi.TypeCloudError, false, "Disk size must be positive, got %d", size)
	}
	if size > s.maxDiskMiB {
		return nil, failf(cpi.TypeNoDiskSpace, false, "Not enough space for a %d MiB disk (max %d MiB)", size, s.maxDiskMiB)
	}
	if vmCID != nil && *vmCID != "" {
		if _, err := s.loadVM(*vmCID); err != nil {
			return nil, err
		}
	}

	disk := &Disk{
		CID:       s.newID(),
		SizeMiB:   size,
		CreatedAt: s.now().UTC(),
	}
	if err := s.state.save(kindDisk, disk.CID, disk); err != nil {
		return nil, err
	}

	log.printf("created disk %s (%d MiB)", disk.CID, size)
	return disk.CID, nil
}

func (s *Server) deleteDisk(req *protocol.RawRequest, log *callLog) (interface{}, error) {
	var cid string
	if err := arg(req, 0, &cid); err != nil {
		return nil, err
	}

	disk, err := s.loadDisk(cid)
	if err != nil {
		return nil, err
	}
	if disk.VMCID != "" {
		return nil, failf(cpi.TypeCloudError, false, "Disk `%s' is attached to VM `%s'", cid, disk.VMCID)
	}
	if _, err := s.state.remove(kindDisk, cid); err != nil {
		return nil, err
	}

	log.printf("deleted disk %s", cid)
	return nil, nil
}

func (s *Server) attachDisk(req *protocol.RawRequest, log *callLog) (interface{}, error) {
	var vmCID, diskCID string
	if err := arg(req, 0, &vmCID); err != nil {
		return nil, err
	}
	if err := arg(req, 1, &diskCID); err != nil {
		return nil, err
	}

	vm, err := s.loadVM(vmCID)
	if err != nil {
		return nil, err
	}
	disk, err := s.loadDisk(diskCID)
	if err != nil {
		return nil, err
	}

	switch disk.VMCID {
	case vmCID:
		return nil, nil
	case "":
	default:
		return nil, failf(cpi.TypeCloudError, false, "Disk `%s' is already attached to VM `%s'", diskCID, disk.VMCID)
	}

	disk.VMCID = vmCID
	vm.DiskCIDs = append(vm.DiskCIDs, diskCID)
	if err := s.state.save(kindDisk, diskCID, disk); err != nil {
		return nil, err
	}
	if err := s.state.save(kindVM, vmCID, vm); err != nil {
		return nil, err
	}

	log.printf("attached disk %s to vm %s", diskCID, vmCID)
	return nil, nil
}

func (s *Server) detachDisk(req *protocol.RawRequest, log *callLog) (interface{}, error) {
	var vmCID, diskCID string
	if err := arg(req, 0, &vmCID); err != nil {
		return nil, err
	}
	if err := arg(req, 1, &diskCID); err != nil {
		return nil, err
	}

	vm, err := s.loadVM(vmCID)
	if err != nil {
		return nil, err
	}
	disk, err := s.loadDisk(diskCID)
	if err != nil {
		return nil, err
	}
	if disk.VMCID != vmCID {
		return nil, failf(cpi.TypeDiskNotAttached, true, "Disk `%s' is not attached to VM `%s'", diskCID, vmCID)
	}

	disk.VMCID = ""
	remaining := vm.DiskCIDs[:0]
	for _, cid := range vm.DiskCIDs {
		if cid != diskCID {
			remaining = append(remaining, cid)
		}
	}
	vm.DiskCIDs = remaining

	if err := s.state.save(kindDisk, diskCID, disk); err != nil {
		return nil, err
	}
	if err := s.state.save(kindVM, vmCID, vm); err != nil {
		return nil, err
	}

	log.printf("detached disk %s from vm %s", diskCID, vmCID)
	return nil, nil
}

func (s *Server) snapshotDisk(req *protocol.RawRequest, log *callLog) (interface{}, error) {
	var diskCID string
	if err := arg(req, 0, &diskCID); err != nil {
		return nil, err
	}
	if _, err := s.loadDisk(diskCID); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		CID:       s.newID(),
		DiskCID:   diskCID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.state.save(kindSnapshot, snap.CID, snap); err != nil {
		return nil, err
	}

	log.printf("created snapshot %s of disk %s", snap.CID, diskCID)
	return snap.CID, nil
}

func (s *Server) deleteSnapshot(req *protocol.RawRequest, log *callLog) (interface{}, error) {
	var cid string
	if err := arg(req, 0, &cid); err != nil {
		return nil, err
	}

	removed, err := s.state.remove(kindSnapshot, cid)
	if err != nil {
		return nil, err
	}
	if removed {
		log.printf("deleted snapshot %s", cid)
	}
	return nil, nil
}

func (s *Server) getDisks(req *protocol.RawRequest, _ *callLog) (interface{}, error) {
	var cid string
	if err := arg(req, 0, &cid); err != nil {
		return nil, err
	}

	vm, err := s.loadVM(cid)
	if err != nil {
		return nil, err
	}
	if vm.DiskCIDs == nil {
		return []string{}, nil
	}
	return vm.DiskCIDs, nil
}
