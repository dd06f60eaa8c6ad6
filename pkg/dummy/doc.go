// Package dummy implements a reference CPI that speaks the external CPI
// protocol from the executable side.
//
// Every object it manages (stemcells, VMs, disks, snapshots) is a JSON file
// under a base directory, so consecutive invocations of the executable share
// state the same way calls against a real cloud would. The dummy never fails
// at the process level: malformed input and unsupported methods are reported
// as structured errors in the response document, and the process exits 0.
//
// Layout of the base directory:
//
//	stemcells/<cid>.json
//	vms/<cid>.json
//	disks/<cid>.json
//	snapshots/<cid>.json
//	.lock
package dummy
