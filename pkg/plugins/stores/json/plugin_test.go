package json

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/dispatchcost/internal/plugins"
	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/logging"
)

func TestNewStore(t *testing.T) {
	p := &Plugin{}
	assert.Equal(t, plugins.ProviderNone, p.OAuthProvider())

	cfg, err := json.Marshal(map[string]string{"filePath": filepath.Join(t.TempDir(), "costs.json")})
	require.NoError(t, err)

	store, err := p.NewStore(context.Background(), nil, cfg, logging.Discard())
	require.NoError(t, err)

	res, err := store.Create(context.Background(), "Dispatch_Item_Cost", api.Payload{Item: "Diesel"})
	require.NoError(t, err)
	assert.Equal(t, api.CodeSuccess, res.Code)
}

func TestNewStore_RequiresFilePath(t *testing.T) {
	_, err := (&Plugin{}).NewStore(context.Background(), nil, json.RawMessage(`{}`), nil)
	assert.ErrorContains(t, err, "filePath is required")
}
