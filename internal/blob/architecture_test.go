package blob

import (
	"testing"

	"mute/testutil"
)

// TestOnlyBlobPackageImportsInfra ensures that only the top-level blob
// package wraps the infra-backed implementations. Other packages must depend
// on the blob.Store interface instead of importing infra packages directly.
func TestOnlyBlobPackageImportsInfra(t *testing.T) {
	testutil.AssertFacadeOwnsImports(t, "mute/...", "mute/internal/infra/blob", "mute/internal/blob")
}
