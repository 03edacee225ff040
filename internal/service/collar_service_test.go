package service

import (
	"os"
	"testing"
	"time"

	"wisefido-collar/internal/config"
	"wisefido-collar/internal/link"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkConfig(t *testing.T) {
	os.Setenv("COLLAR_NAME_FILTER", "PUPPY")
	os.Setenv("COLLAR_CONNECT_TIMEOUT", "8s")
	defer os.Unsetenv("COLLAR_NAME_FILTER")
	defer os.Unsetenv("COLLAR_CONNECT_TIMEOUT")

	cfg, err := config.Load()
	require.NoError(t, err)

	lc := LinkConfig(cfg)
	assert.Equal(t, "PUPPY", lc.Filter.NameContains)
	assert.Equal(t, cfg.Collar.Link.ServiceUUID, lc.Filter.ServiceUUID)
	assert.Equal(t, 8*time.Second, lc.ConnectTimeout)

	defaults := link.DefaultConfig()
	assert.Equal(t, defaults.ScanTimeout, lc.ScanTimeout)
	assert.Equal(t, defaults.ReconnectDelay, lc.ReconnectDelay)
	assert.Equal(t, defaults.AckMinInterval, lc.AckMinInterval)
	assert.Equal(t, defaults.PreferredMTU, lc.PreferredMTU)
}
