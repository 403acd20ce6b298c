package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boigordo/internal/core/id"
)

func TestParse(t *testing.T) {
	lotID := id.New()

	s, err := Parse("")
	require.NoError(t, err)
	assert.True(t, s.IsGlobal())

	s, err = Parse("lot:" + lotID.String())
	require.NoError(t, err)
	assert.True(t, s.Is(TypeLot, lotID))
	assert.Equal(t, "LOT:"+lotID.String(), s.String())
	assert.Equal(t, lotID.String(), s.Key())

	for _, bad := range []string{"LOT", "LOT:nope", "BARN:" + lotID.String()} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}
