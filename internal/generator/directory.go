package generator

import (
	"context"
	"errors"
)

// ErrDirectoryUnavailable marks a transient directory failure. The caller
// treats the affected entity as not found and emits a degraded call log;
// there is no retry inside the pipeline.
var ErrDirectoryUnavailable = errors.New("directory service unavailable")

// DirectoryParticipant is what the directory knows about one line/user.
type DirectoryParticipant struct {
	UUID          string
	LineID        int
	Tags          []string
	TenantUUID    string
	MainExtension *Extension
}

// DirectoryContext is a dialplan context as known by the directory.
type DirectoryContext struct {
	Name       string
	TenantUUID string
}

// Directory is the narrow contract exposed by the external directory
// service ("confd"). All lookups may block on network I/O and must honor
// the context deadline. A nil participant with a nil error means the
// entity is genuinely unknown.
type Directory interface {
	FindParticipantByChannel(ctx context.Context, channelName string) (*DirectoryParticipant, error)
	FindParticipantByUUID(ctx context.Context, userUUID string) (*DirectoryParticipant, error)
	ListContexts(ctx context.Context, name string) ([]DirectoryContext, error)
}
