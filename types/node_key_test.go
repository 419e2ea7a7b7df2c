package types_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ledgersync/ledgersync/types"
)

func TestLoadOrGenNodeKey(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "peer_id.json")

	nodeKey, err := types.LoadOrGenNodeKey(filePath)
	require.NoError(t, err)
	require.NoError(t, nodeKey.ID.Validate())

	nodeKey2, err := types.LoadOrGenNodeKey(filePath)
	require.NoError(t, err)
	require.Equal(t, nodeKey.ID, nodeKey2.ID)
	require.True(t, nodeKey.PrivKey.Equals(nodeKey2.PrivKey))
}

func TestLoadNodeKeyRejectsMismatchedID(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "peer_id.json")

	nodeKey := types.GenNodeKey()
	nodeKey.ID = types.GenNodeKey().ID
	require.NoError(t, nodeKey.SaveAs(filePath))

	_, err := types.LoadNodeKey(filePath)
	require.Error(t, err)
}

func TestLoadNodeKeyMissingFile(t *testing.T) {
	_, err := types.LoadNodeKey(filepath.Join(t.TempDir(), "missing.json"))
	require.True(t, os.IsNotExist(err))
}
