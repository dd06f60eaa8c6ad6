package cpi

import (
	"context"
	"encoding/json"
	"fmt"
)

// Cloud is the director's view of an infrastructure backend. Arguments go to
// the CPI as given: nil maps and slices are sent as null.
type Cloud interface {
	CurrentVMID(ctx context.Context) (string, error)
	CreateStemcell(ctx context.Context, imagePath string, cloudProperties map[string]interface{}) (string, error)
	DeleteStemcell(ctx context.Context, stemcellCID string) error
	CreateVM(ctx context.Context, agentID, stemcellCID string, cloudProperties, networkSettings map[string]interface{}, diskCIDs []string, environment map[string]interface{}) (string, error)
	DeleteVM(ctx context.Context, vmCID string) error
	HasVM(ctx context.Context, vmCID string) (bool, error)
	RebootVM(ctx context.Context, vmCID string) error
	SetVMMetadata(ctx context.Context, vmCID string, metadata map[string]string) error
	ConfigureNetworks(ctx context.Context, vmCID string, networks map[string]interface{}) error
	CreateDisk(ctx context.Context, size int, vmCID string) (string, error)
	DeleteDisk(ctx context.Context, diskCID string) error
	AttachDisk(ctx context.Context, vmCID, diskCID string) error
	DetachDisk(ctx context.Context, vmCID, diskCID string) error
	SnapshotDisk(ctx context.Context, diskCID string) (string, error)
	DeleteSnapshot(ctx context.Context, snapshotCID string) error
	GetDisks(ctx context.Context, vmCID string) ([]string, error)
	Ping(ctx context.Context) (string, error)
}

var _ Cloud = (*ExternalCpi)(nil)

// CurrentVMID returns the CID of the VM the director runs on.
func (c *ExternalCpi) CurrentVMID(ctx context.Context) (string, error) {
	return c.callString(ctx, MethodCurrentVMID)
}

// CreateStemcell uploads an image and returns its stemcell CID.
func (c *ExternalCpi) CreateStemcell(ctx context.Context, imagePath string, cloudProperties map[string]interface{}) (string, error) {
	return c.callString(ctx, MethodCreateStemcell, imagePath, cloudProperties)
}

// DeleteStemcell removes a stemcell from the infrastructure.
func (c *ExternalCpi) DeleteStemcell(ctx context.Context, stemcellCID string) error {
	_, err := c.Call(ctx, MethodDeleteStemcell, stemcellCID)
	return err
}

// CreateVM creates a VM and returns its CID.
func (c *ExternalCpi) CreateVM(ctx context.Context, agentID, stemcellCID string, cloudProperties, networkSettings map[string]interface{}, diskCIDs []string, environment map[string]interface{}) (string, error) {
	return c.callString(ctx, MethodCreateVM,
		agentID,
		stemcellCID,
		cloudProperties,
		networkSettings,
		diskCIDs,
		environment,
	)
}

// DeleteVM deletes a VM.
func (c *ExternalCpi) DeleteVM(ctx context.Context, vmCID string) error {
	_, err := c.Call(ctx, MethodDeleteVM, vmCID)
	return err
}

// HasVM reports whether the VM still exists on the infrastructure.
func (c *ExternalCpi) HasVM(ctx context.Context, vmCID string) (bool, error) {
	raw, err := c.Call(ctx, MethodHasVM, vmCID)
	if err != nil {
		return false, err
	}
	var found bool
	if err := decodeResult(MethodHasVM, raw, &found); err != nil {
		return false, err
	}
	return found, nil
}

// RebootVM reboots a VM.
func (c *ExternalCpi) RebootVM(ctx context.Context, vmCID string) error {
	_, err := c.Call(ctx, MethodRebootVM, vmCID)
	return err
}

// SetVMMetadata tags a VM with metadata.
func (c *ExternalCpi) SetVMMetadata(ctx context.Context, vmCID string, metadata map[string]string) error {
	_, err := c.Call(ctx, MethodSetVMMetadata, vmCID, metadata)
	return err
}

// ConfigureNetworks applies new network settings to a running VM.
func (c *ExternalCpi) ConfigureNetworks(ctx context.Context, vmCID string, networks map[string]interface{}) error {
	_, err := c.Call(ctx, MethodConfigureNetworks, vmCID, networks)
	return err
}

// CreateDisk creates a disk of size MiB, optionally near vmCID, and returns
// its CID. An empty vmCID is sent as null.
func (c *ExternalCpi) CreateDisk(ctx context.Context, size int, vmCID string) (string, error) {
	var locality interface{}
	if vmCID != "" {
		locality = vmCID
	}
	return c.callString(ctx, MethodCreateDisk, size, locality)
}

// DeleteDisk deletes a disk.
func (c *ExternalCpi) DeleteDisk(ctx context.Context, diskCID string) error {
	_, err := c.Call(ctx, MethodDeleteDisk, diskCID)
	return err
}

// AttachDisk attaches diskCID to vmCID.
func (c *ExternalCpi) AttachDisk(ctx context.Context, vmCID, diskCID string) error {
	_, err := c.Call(ctx, MethodAttachDisk, vmCID, diskCID)
	return err
}

// DetachDisk detaches diskCID from vmCID.
func (c *ExternalCpi) DetachDisk(ctx context.Context, vmCID, diskCID string) error {
	_, err := c.Call(ctx, MethodDetachDisk, vmCID, diskCID)
	return err
}

// SnapshotDisk returns the CID of the new snapshot.
func (c *ExternalCpi) SnapshotDisk(ctx context.Context, diskCID string) (string, error) {
	return c.callString(ctx, MethodSnapshotDisk, diskCID)
}

// DeleteSnapshot deletes a disk snapshot.
func (c *ExternalCpi) DeleteSnapshot(ctx context.Context, snapshotCID string) error {
	_, err := c.Call(ctx, MethodDeleteSnapshot, snapshotCID)
	return err
}

// GetDisks lists the disk CIDs attached to vmCID.
func (c *ExternalCpi) GetDisks(ctx context.Context, vmCID string) ([]string, error) {
	raw, err := c.Call(ctx, MethodGetDisks, vmCID)
	if err != nil {
		return nil, err
	}
	var disks []string
	if err := decodeResult(MethodGetDisks, raw, &disks); err != nil {
		return nil, err
	}
	if disks == nil {
		disks = []string{}
	}
	return disks, nil
}

// Ping returns whatever the CPI answers, normally "pong".
func (c *ExternalCpi) Ping(ctx context.Context) (string, error) {
	return c.callString(ctx, MethodPing)
}

func (c *ExternalCpi) callString(ctx context.Context, method string, args ...interface{}) (string, error) {
	raw, err := c.Call(ctx, method, args...)
	if err != nil {
		return "", err
	}
	var s string
	if err := decodeResult(method, raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

// decodeResult decodes a typed result. A null result leaves target unchanged.
func decodeResult(method string, raw json.RawMessage, target interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return NewInvalidResponseError(fmt.Errorf("unexpected %s result %s: %w", method, raw, err))
	}
	return nil
}
