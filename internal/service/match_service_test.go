package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/model"
	"github.com/qs3c/careerlane_server/internal/repository"
	"github.com/qs3c/careerlane_server/internal/testutil"
)

func TestScore(t *testing.T) {
	v := []float32{0.3, -1.2, 4.5, 0.01}
	w := []float32{1, 2, 3, 4}

	t.Run("self is one", func(t *testing.T) {
		s, err := Score(v, v)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, s, 1e-9)
	})

	t.Run("symmetric", func(t *testing.T) {
		a, err := Score(v, w)
		require.NoError(t, err)
		b, err := Score(w, v)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})

	t.Run("opposite clamps to zero", func(t *testing.T) {
		s, err := Score([]float32{1, 0}, []float32{-1, 0})
		require.NoError(t, err)
		assert.Equal(t, 0.0, s)
	})

	t.Run("always within range", func(t *testing.T) {
		for _, pair := range [][2][]float32{
			{{1e-20, 1e-20}, {1e-20, 1e-20}},
			{{3.4e18, 1}, {3.4e18, 1}},
			{{0.1, 0.2, 0.3}, {0.1, 0.2, 0.3000001}},
		} {
			s, err := Score(pair[0], pair[1])
			require.NoError(t, err)
			assert.GreaterOrEqual(t, s, 0.0)
			assert.LessOrEqual(t, s, 1.0)
		}
	})

	t.Run("zero vector", func(t *testing.T) {
		s, err := Score([]float32{0, 0}, []float32{1, 1})
		require.NoError(t, err)
		assert.Equal(t, 0.0, s)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := Score([]float32{1}, []float32{1, 2})
		assert.True(t, errors.Is(err, ErrDimensionMismatch))
	})
}

// unitAt 与 (1,0,...) 的余弦相似度恰好为 cos
func unitAt(dims int, cos float64) []float32 {
	v := make([]float32, dims)
	v[0] = float32(cos)
	v[1] = float32(math.Sqrt(1 - cos*cos))
	return v
}

func setupMatch(t *testing.T, threshold float64) (*MatchService, *enrichFixture) {
	t.Helper()
	f := setupEnrichment(t)
	svc := NewMatchService(repository.NewUserRepository(f.db), f.jobRepo, config.MatchConfig{GapThreshold: threshold})
	return svc, f
}

func TestMatchService_Match(t *testing.T) {
	svc, f := setupMatch(t, 0.70)
	ctx := context.Background()

	user := testutil.TestUser(t, f.db, testutil.WithResume("B.Com graduate. Advanced excel, tally and GST filing.", testutil.Vec(testDims, 1)))

	t.Run("close match has no gap", func(t *testing.T) {
		job := testutil.TestJobPosting(t, f.db, testutil.Enriched(unitAt(testDims, 0.95)))
		res, err := svc.Match(ctx, user.ID, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, res.JobID)
		assert.InDelta(t, 0.95, res.SimilarityScore, 1e-6)
		assert.False(t, res.GapDetected)
		assert.Empty(t, res.MissingSkills)
	})

	t.Run("gap lists missing skills", func(t *testing.T) {
		job := testutil.TestJobPosting(t, f.db,
			testutil.WithSkills("Excel", "SQL", "Power BI", "GST"),
			testutil.Enriched(unitAt(testDims, 0.4)))
		res, err := svc.Match(ctx, user.ID, job.ID)
		require.NoError(t, err)
		assert.True(t, res.GapDetected)
		assert.Equal(t, []string{"SQL", "Power BI"}, res.MissingSkills)
	})

	t.Run("processing job", func(t *testing.T) {
		job := testutil.TestJobPosting(t, f.db)
		_, err := svc.Match(ctx, user.ID, job.ID)
		assert.True(t, errors.Is(err, ErrJobNotEnriched))
	})

	t.Run("missing job", func(t *testing.T) {
		_, err := svc.Match(ctx, user.ID, "00000000-0000-0000-0000-000000000000")
		assert.True(t, errors.Is(err, ErrJobNotFound))
	})
}

func TestMatchService_ResumeMissing(t *testing.T) {
	svc, f := setupMatch(t, 0)
	job := testutil.TestJobPosting(t, f.db, testutil.Enriched(testutil.Vec(testDims, 1)))
	user := testutil.TestUser(t, f.db)

	_, err := svc.Match(context.Background(), user.ID, job.ID)
	assert.True(t, errors.Is(err, ErrResumeMissing))

	// 未创建的用户同样视为没有简历
	_, err = svc.Match(context.Background(), "00000000-0000-0000-0000-000000000001", job.ID)
	assert.True(t, errors.Is(err, ErrResumeMissing))
}

func TestMatchService_ThresholdIsStrict(t *testing.T) {
	svc, f := setupMatch(t, 0.36)
	ctx := context.Background()

	// 模长都是 5，得分恰好为 9/25
	user := testutil.TestUser(t, f.db, testutil.WithResume("resume", []float32{3, 4, 0, 0}))
	job := testutil.TestJobPosting(t, f.db, testutil.Enriched([]float32{3, 0, 4, 0}))

	res, err := svc.Match(ctx, user.ID, job.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.36, res.SimilarityScore)
	assert.False(t, res.GapDetected)
	assert.Equal(t, DefaultGapThreshold, NewMatchService(nil, nil, config.MatchConfig{}).threshold)
}

func TestMissingSkills(t *testing.T) {
	resume := "Worked with C++ and Go. Familiar with MS-Excel; SQLite hobbyist."
	got := MissingSkills(model.StringArray{"c++", "go", "excel", "SQL", " ", "Java"}, resume)
	assert.Equal(t, []string{"SQL", "Java"}, got)
}
