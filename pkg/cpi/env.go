package cpi

import "os"

// DefaultPath is the only PATH a CPI ever sees.
const DefaultPath = "/usr/sbin:/usr/bin:/sbin:/bin"

// LookupEnvFunc reads a variable from the caller's environment.
type LookupEnvFunc func(key string) (string, bool)

// Environment returns the subprocess environment: the fixed PATH plus TMPDIR
// when the caller has it set. Nothing else is forwarded.
func Environment(lookup LookupEnvFunc) []string {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	env := []string{"PATH=" + DefaultPath}
	if tmpdir, ok := lookup("TMPDIR"); ok {
		env = append(env, "TMPDIR="+tmpdir)
	}
	return env
}
