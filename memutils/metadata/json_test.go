package metadata_test

import (
	"encoding/json"
	"testing"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/memsim/memutils/metadata"
)

func decodeBlockJson(t *testing.T, block metadata.BlockMetadata) map[string]any {
	t.Helper()

	w := jwriter.NewWriter()
	obj := w.Object()
	block.BlockJsonData(obj)
	obj.End()
	require.NoError(t, w.Error())

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.Bytes(), &decoded), string(w.Bytes()))
	return decoded
}

func TestRegionBlockJsonData(t *testing.T) {
	m := fragmentedRegions(t)

	decoded := decodeBlockJson(t, m)
	require.Equal(t, float64(110), decoded["TotalBytes"])
	require.Equal(t, float64(90), decoded["UnusedBytes"])
	require.Equal(t, float64(3), decoded["Allocations"])
	require.Equal(t, float64(3), decoded["UnusedRanges"])
	require.Equal(t, float64(50), decoded["LargestFreeBlock"])
	require.Equal(t, float64(6), decoded["Requests"])
	require.Len(t, decoded["Regions"], 6)

	first := decoded["Regions"].([]any)[0].(map[string]any)
	require.Equal(t, map[string]any{
		"Start": float64(0),
		"End":   float64(9),
		"Size":  float64(10),
		"Free":  true,
	}, first)
}

func TestBuddyBlockJsonData(t *testing.T) {
	m, err := metadata.NewBuddyBlockMetadata(256)
	require.NoError(t, err)

	_, err = m.Allocate(5)
	require.NoError(t, err)
	_, err = m.Allocate(100)
	require.NoError(t, err)

	decoded := decodeBlockJson(t, m)
	require.Equal(t, float64(256), decoded["TotalBytes"])
	require.Equal(t, float64(m.SumFreeSize()), decoded["UnusedBytes"])
	require.Equal(t, float64(2), decoded["Allocations"])
	require.Equal(t, float64(8), decoded["MaxOrder"])
	require.Equal(t, float64(m.Stats().InternalFragmentation), decoded["InternalFragmentation"])
	require.Equal(t, float64(2), decoded["Requests"])
	require.Len(t, decoded["FreeLists"], len(m.FreeListLengths()))
	require.Len(t, decoded["Chunks"], len(m.Chunks()))
}
