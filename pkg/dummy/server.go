package dummy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openfroyo/externalcpi/pkg/cpi"
	"github.com/openfroyo/externalcpi/pkg/cpi/protocol"
)

const (
	// DefaultCurrentVMID is reported by current_vm_id when none is configured.
	DefaultCurrentVMID = "dummy-director-vm"

	// DefaultMaxDiskSizeMiB is the largest disk create_disk accepts.
	DefaultMaxDiskSizeMiB int64 = 1 << 20

	// FailCreateProperty in create_vm cloud properties makes the call fail
	// with a retryable VMCreationFailed.
	FailCreateProperty = "fail_create"
)

// Options configures a Server.
type Options struct {
	// BaseDir holds the state files. Defaults to $TMPDIR/dummy-cpi.
	BaseDir string

	// Logger receives diagnostics. The dummy writes them to stderr.
	Logger zerolog.Logger

	CurrentVMID    string
	MaxDiskSizeMiB int64

	// NewID generates CIDs. Defaults to random UUIDs.
	NewID func() string

	Now func() time.Time
}

// DefaultBaseDir returns the state directory used when none is given.
func DefaultBaseDir() string {
	return filepath.Join(os.TempDir(), "dummy-cpi")
}

// Server answers CPI requests against file-backed state.
type Server struct {
	state       *State
	logger      zerolog.Logger
	currentVMID string
	maxDiskMiB  int64
	newID       func() string
	now         func() time.Time

	mu sync.Mutex
}

type handlerFunc func(s *Server, req *protocol.RawRequest, log *callLog) (interface{}, error)

var handlers = map[string]handlerFunc{
	cpi.MethodCurrentVMID:       (*Server).currentVM,
	cpi.MethodCreateStemcell:    (*Server).createStemcell,
	cpi.MethodDeleteStemcell:    (*Server).deleteStemcell,
	cpi.MethodCreateVM:          (*Server).createVM,
	cpi.MethodDeleteVM:          (*Server).deleteVM,
	cpi.MethodHasVM:             (*Server).hasVM,
	cpi.MethodRebootVM:          (*Server).rebootVM,
	cpi.MethodSetVMMetadata:     (*Server).setVMMetadata,
	cpi.MethodConfigureNetworks: (*Server).configureNetworks,
	cpi.MethodCreateDisk:        (*Server).createDisk,
	cpi.MethodDeleteDisk:        (*Server).deleteDisk,
	cpi.MethodAttachDisk:        (*Server).attachDisk,
	cpi.MethodDetachDisk:        (*Server).detachDisk,
	cpi.MethodSnapshotDisk:      (*Server).snapshotDisk,
	cpi.MethodDeleteSnapshot:    (*Server).deleteSnapshot,
	cpi.MethodGetDisks:          (*Server).getDisks,
	cpi.MethodPing:              (*Server).ping,
}

// New creates a server and its state directory.
func New(opts Options) (*Server, error) {
	if opts.BaseDir == "" {
		opts.BaseDir = DefaultBaseDir()
	}
	if opts.CurrentVMID == "" {
		opts.CurrentVMID = DefaultCurrentVMID
	}
	if opts.MaxDiskSizeMiB <= 0 {
		opts.MaxDiskSizeMiB = DefaultMaxDiskSizeMiB
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.New().String() }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	state, err := NewState(opts.BaseDir)
	if err != nil {
		return nil, err
	}

	return &Server{
		state:       state,
		logger:      opts.Logger.With().Str("component", "dummy-cpi").Logger(),
		currentVMID: opts.CurrentVMID,
		maxDiskMiB:  opts.MaxDiskSizeMiB,
		newID:       opts.NewID,
		now:         opts.Now,
	}, nil
}

// State exposes the backing store for inspection.
func (s *Server) State() *State {
	return s.state
}

// Serve reads one request from r and writes exactly one response to w.
// Malformed requests are answered with a CpiError; only a failure to write
// the response is returned.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	var resp *protocol.Response

	req, err := protocol.ReadRequest(r)
	if err != nil {
		s.logger.Error().Err(err).Msg("Rejected malformed request")
		resp = protocol.NewErrorResponse(cpi.TypeCpiError, fmt.Sprintf("Invalid request: %v", err), false, "")
	} else {
		resp = s.Handle(ctx, req)
	}

	return protocol.EncodeResponse(w, resp)
}

// Handle executes one request and builds its response.
func (s *Server) Handle(ctx context.Context, req *protocol.RawRequest) *protocol.Response {
	logger := s.logger.With().
		Str("method", req.Method).
		Str("director_uuid", req.Context.DirectorUUID).
		Logger()
	if req.Context.RequestID != "" {
		logger = logger.With().Str("request_id", req.Context.RequestID).Logger()
	}

	log := &callLog{}
	start := s.now()

	result, err := s.dispatch(req, log)
	if err != nil {
		logger.Warn().Err(err).Dur("duration", s.now().Sub(start)).Msg("Request failed")
		return toResponse(err, log.String())
	}

	resp, err := protocol.NewResultResponse(result, log.String())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to encode result")
		return toResponse(err, log.String())
	}

	logger.Debug().Dur("duration", s.now().Sub(start)).Msg("Request completed")
	return resp
}

func (s *Server) dispatch(req *protocol.RawRequest, log *callLog) (interface{}, error) {
	spec, ok := cpi.LookupMethod(req.Method)
	handler, known := handlers[req.Method]
	if !ok || !known {
		return nil, failf(cpi.TypeNotImplemented, false, "Method `%s' is not implemented", req.Method)
	}
	if len(req.Arguments) != len(spec.Params) {
		return nil, failf(cpi.TypeCpiError, false, "Invalid arguments for %s: expected %d, got %d",
			spec.Name, len(spec.Params), len(req.Arguments))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	unlock, err := lockFile(filepath.Join(s.state.Dir(), ".lock"))
	if err != nil {
		return nil, err
	}
	defer unlock()

	return handler(s, req, log)
}

// callLog accumulates the text returned in the response's log field.
type callLog struct {
	b strings.Builder
}

func (l *callLog) printf(format string, args ...interface{}) {
	fmt.Fprintf(&l.b, format, args...)
	l.b.WriteByte('\n')
}

func (l *callLog) String() string {
	return l.b.String()
}

// arg decodes a positional argument, reporting decode failures as CpiError.
func arg(req *protocol.RawRequest, i int, target interface{}) error {
	if err := req.Argument(i, target); err != nil {
		return failf(cpi.TypeCpiError, false, "Invalid arguments for %s: %v", req.Method, err)
	}
	return nil
}
