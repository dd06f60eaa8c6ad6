// Package cpi invokes external Cloud Provider Interface executables.
//
// A CPI is a separate executable, written in any language, that performs
// infrastructure operations (VMs, disks, stemcells) on behalf of the
// director. Every call runs the executable once, with no arguments and a
// minimal environment, writes a single JSON request to its standard input
// and reads a single JSON response from its standard output:
//
//	{"method":"attach_disk","arguments":["vm-1","disk-1"],"context":{"director_uuid":"..."}}
//	{"result":null,"error":null,"log":""}
//
// The process exit status is captured but never decides success; only a
// non-null error object does. Errors reported by the CPI are translated
// through an ErrorRegistry into *Error values whose Kind and OkToRetry let
// callers decide whether to retry. This package never retries by itself.
//
// # Usage
//
//	c, err := cpi.New(cpi.Config{
//	    ExecPath: "/var/vcap/jobs/aws_cpi/bin/cpi",
//	    Identity: cpi.StaticIdentity(directorUUID),
//	    Logger:   logger,
//	})
//	vmCID, err := c.CreateVM(ctx, agentID, stemcellCID, cloudProps, networks, nil, env)
//	if cpi.IsRetryable(err) {
//	    // safe to issue the same call again
//	}
package cpi
