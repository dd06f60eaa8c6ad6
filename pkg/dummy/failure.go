package dummy

import (
	"errors"
	"fmt"

	"github.com/openfroyo/externalcpi/pkg/cpi"
	"github.com/openfroyo/externalcpi/pkg/cpi/protocol"
)

// Failure is an error the dummy reports in the response's error field.
type Failure struct {
	Type      string
	Message   string
	OkToRetry bool
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Type, f.Message)
}

func failf(errType string, okToRetry bool, format string, args ...interface{}) *Failure {
	return &Failure{Type: errType, Message: fmt.Sprintf(format, args...), OkToRetry: okToRetry}
}

func vmNotFound(cid string) *Failure {
	return failf(cpi.TypeVMNotFound, false, "VM `%s' not found", cid)
}

func diskNotFound(cid string) *Failure {
	return failf(cpi.TypeDiskNotFound, false, "Disk `%s' not found", cid)
}

// toResponse converts a handler error into a response. Anything that is not
// a *Failure becomes a CpiError.
func toResponse(err error, log string) *protocol.Response {
	var f *Failure
	if !errors.As(err, &f) {
		f = &Failure{Type: cpi.TypeCpiError, Message: err.Error()}
	}
	return protocol.NewErrorResponse(f.Type, f.Message, f.OkToRetry, log)
}
