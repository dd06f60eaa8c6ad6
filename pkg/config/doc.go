// Package config loads the YAML configuration of the CPI bridge: the
// director identity, the named CPI executables, the call journal and
// telemetry settings.
//
// Example:
//
//	director:
//	  name: my-director
//	  uuid: 2f5e2a4c-3d5b-4c6e-9a1f-0b8c7d6e5f4a
//	default_cpi: aws
//	cpis:
//	  - name: aws
//	    exec_path: /var/vcap/jobs/aws_cpi/bin/cpi
//	  - name: vsphere
//	    exec_path: /var/vcap/jobs/vsphere_cpi/bin/cpi
//	journal:
//	  enabled: true
//	  path: /var/vcap/store/director/cpi.db
//	  retention: 720h
//	telemetry:
//	  logging:
//	    level: debug
//
// Struct tags are checked with go-playground/validator. A Watcher reloads
// the file on change so the CPI registry can be rebuilt without a restart.
package config
