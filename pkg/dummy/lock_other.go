//go:build !unix

package dummy

// lockFile is a no-op where flock is unavailable; the in-process mutex still
// serializes calls within one process.
func lockFile(string) (func(), error) {
	return func() {}, nil
}
