package toolstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFTSQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "qr", want: `"qr"*`},
		{in: "QR code", want: `"qr"* OR "code"*`},
		{in: `"unbalanced -quote`, want: `"unbalanced"* OR "quote"*`},
		{in: "--", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ftsQuery(tt.in))
		})
	}
}

func TestSearch_Keyword(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	double, err := s.Create(ctx, doubleTool())
	require.NoError(t, err)
	qr, err := s.Create(ctx, qrTool())
	require.NoError(t, err)

	results, err := s.Search(ctx, "qr", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, qr.ID, results[0].Tool.ID)
	assert.Nil(t, results[0].VectorScore)
	require.NotNil(t, results[0].KeywordScore)

	results, err = s.Search(ctx, "multiply", nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, double.ID, results[0].Tool.ID)

	results, err = s.Search(ctx, "  ", nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	results, err = s.Search(ctx, `"(`, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_Hybrid(t *testing.T) {
	s := openTestStore(t, &wordEmbedder{dimension: 32})
	ctx := context.Background()

	_, err := s.Create(ctx, doubleTool())
	require.NoError(t, err)
	qr, err := s.Create(ctx, qrTool())
	require.NoError(t, err)

	results, err := s.Search(ctx, "qr code", nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, qr.ID, results[0].Tool.ID)
	assert.NotNil(t, results[0].VectorScore)
	assert.NotNil(t, results[0].KeywordScore)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearch_LimitAndMinScore(t *testing.T) {
	s := openTestStore(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, doubleTool())
		require.NoError(t, err)
	}

	results, err := s.Search(ctx, "double", &SearchOptions{Limit: 2, KeywordWeight: 1})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = s.Search(ctx, "double", &SearchOptions{Limit: 5, KeywordWeight: 0.3, MinScore: 0.5})
	require.NoError(t, err)
	assert.Empty(t, results)
}
