package dataerr_test

import (
	"os"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/sugarme/myops/dataerr"
)

func TestKinds(t *testing.T) {
	err := dataerr.Manifestf("reading %q: %v", "x.csv", os.ErrNotExist)
	assert.True(t, errors.Is(err, dataerr.ErrManifest))
	assert.False(t, errors.Is(err, dataerr.ErrDecode))
	assert.Contains(t, err.Error(), "x.csv")

	// Wrapping again keeps the kind.
	err = errors.Wrap(dataerr.Indexf("index %d", 7), "item")
	assert.True(t, errors.Is(err, dataerr.ErrIndex))

	assert.True(t, errors.Is(dataerr.Decodef("bad"), dataerr.ErrDecode))
	assert.True(t, errors.Is(dataerr.Configf("bad"), dataerr.ErrConfig))
}
