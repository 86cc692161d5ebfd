// Package constants holds compile-time defaults shared across the core.
package constants

// Block sizing defaults.
const (
	// DefaultBlockSize is a suggested block size for callers with no
	// preference. 2MiB is the top of the 128KiB-2MiB window. No core
	// API falls back to it on its own; every caller passes a size.
	DefaultBlockSize = 2 << 20

	// MinBlockSize and MaxBlockSize name the 128KiB-2MiB block size
	// window. Nothing in the core checks sizes against them:
	// NewAlignedBuffer and BlockManager.NewBlocks accept other sizes too.
	MinBlockSize = 128 << 10
	MaxBlockSize = 2 << 20

	// DefaultAlignment is the minimum buffer/offset alignment DIRECT
	// I/O requires on the platforms this library targets.
	DefaultAlignment = 4096
)

// Queue and pool defaults.
const (
	// DefaultPrefetchBuffers is the default prefetch pool capacity.
	DefaultPrefetchBuffers = 4

	// DefaultWriteBuffers is the default write-back pool capacity.
	DefaultWriteBuffers = 4

	// AutoAssignDiskIndex marks a BID whose disk has not been chosen yet.
	AutoAssignDiskIndex = -1
)

// WaitLogEnvVar and ConfigEnvVar name the environment variables the
// spec documents for overriding default search/behavior.
const (
	ConfigEnvVar  = "STXXL_CONFIG"
	WaitLogEnvVar = "STXXLWAITLOGFILE"
)

// UniqueTempFileMarker is the configuration path that requests a
// unique temp file, deleted on exit, instead of a fixed path.
const UniqueTempFileMarker = "###"
