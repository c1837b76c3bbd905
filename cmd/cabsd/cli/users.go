package cli

import (
	"github.com/cabshq/cabs/cmd/cabsd/config"
	"github.com/cabshq/cabs/core"
	"github.com/cabshq/cabs/internal/backend"
	"github.com/cabshq/cabs/internal/contracts"
)

func userFromConfig(u config.UserConfig) core.User {
	return core.User{ID: u.ID, Username: u.Username, Quota: u.Quota}
}

// newInMemoryNear builds the cache's near tier, always a bounded in-memory
// store: it's the fast tier by definition, so there's no config knob for
// its kind the way there is for the far tier.
func newInMemoryNear() contracts.BlobBackend {
	return backend.NewInMemory(0)
}
