package search

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/foldermcp/folderindex/internal/store"
)

func TestFuse_DocumentInBothListsRanksHigher(t *testing.T) {
	f := NewRRFFusion()
	keyword := []Result{{DocumentPath: "a.txt", Score: 1.0}, {DocumentPath: "b.txt", Score: 0.9}}
	vector := []store.SearchHit{{Path: "a.txt", Score: 0.8}, {Path: "c.txt", Score: 0.95}}

	fused := f.Fuse(keyword, vector, DefaultWeights())
	require.NotEmpty(t, fused)
	require.Equal(t, "a.txt", fused[0].DocumentPath)
	require.True(t, fused[0].InBothLists)
}

func TestFuse_EmptyInputsReturnNil(t *testing.T) {
	f := NewRRFFusion()
	require.Nil(t, f.Fuse(nil, nil, DefaultWeights()))
}

func TestFuse_TopScoreNormalizedToOne(t *testing.T) {
	f := NewRRFFusion()
	keyword := []Result{{DocumentPath: "a.txt", Score: 1.0}}
	fused := f.Fuse(keyword, nil, DefaultWeights())
	require.Equal(t, 1.0, fused[0].RRFScore)
}
