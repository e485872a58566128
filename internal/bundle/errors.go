package bundle

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors. Typed errors below match them through errors.Is.
var (
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrPayloadDownload    = errors.New("payload download failed")
	ErrCycleDetected      = errors.New("dependency cycle detected")
	ErrDanglingDependency = errors.New("dangling dependency")
	ErrNotLocal           = errors.New("bundle not synced locally")
	ErrMissingDependency  = errors.New("missing dependency")
	ErrNotLoaded          = errors.New("bundle not loaded")
	ErrUnknownBundle      = errors.New("unknown bundle")
	ErrDuplicateBundle    = errors.New("duplicate bundle id")
	ErrStillRequired      = errors.New("bundle is required by loaded dependents")
)

// PayloadDownloadError reports a failed payload or manifest download for one
// bundle. It never aborts a batch.
type PayloadDownloadError struct {
	ID    string
	Cause error
}

func (e *PayloadDownloadError) Error() string {
	return fmt.Sprintf("downloading bundle %s: %v", e.ID, e.Cause)
}

func (e *PayloadDownloadError) Unwrap() error { return e.Cause }

func (e *PayloadDownloadError) Is(target error) bool { return target == ErrPayloadDownload }

// CycleError reports a dependency cycle. Path starts and ends with the same id.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCycleDetected, strings.Join(e.Path, " -> "))
}

func (e *CycleError) Is(target error) bool { return target == ErrCycleDetected }

// IDs returns the distinct ids taking part in the cycle.
func (e *CycleError) IDs() []string {
	if len(e.Path) < 2 {
		return e.Path
	}
	return e.Path[:len(e.Path)-1]
}

// DanglingDependency is a soft diagnostic: From declares a dependency on
// Missing, which the snapshot does not contain.
type DanglingDependency struct {
	From    string
	Missing string
}

func (d DanglingDependency) Error() string {
	return fmt.Sprintf("%v: %s depends on %s", ErrDanglingDependency, d.From, d.Missing)
}

func (d DanglingDependency) Is(target error) bool { return target == ErrDanglingDependency }

// NotLocalError is returned when a bundle has no local index entry.
type NotLocalError struct {
	ID string
}

func (e *NotLocalError) Error() string {
	return fmt.Sprintf("bundle %s is not synced locally", e.ID)
}

func (e *NotLocalError) Is(target error) bool { return target == ErrNotLocal }

// MissingDependencyError is returned when loading ID requires DepID, which is
// not present locally.
type MissingDependencyError struct {
	ID    string
	DepID string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("bundle %s requires %s, which is not synced locally", e.ID, e.DepID)
}

func (e *MissingDependencyError) Is(target error) bool { return target == ErrMissingDependency }

// NotLoadedError is returned when unloading a bundle with no live handle.
type NotLoadedError struct {
	ID string
}

func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("bundle %s is not loaded", e.ID)
}

func (e *NotLoadedError) Is(target error) bool { return target == ErrNotLoaded }
