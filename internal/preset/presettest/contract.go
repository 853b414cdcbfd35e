// Package presettest holds the behaviour every preset.Store must share.
package presettest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjeanneret/VoxArm/internal/arm"
	"github.com/cjeanneret/VoxArm/internal/preset"
)

// RunStoreContract exercises a fresh, empty store.
func RunStoreContract(t *testing.T, s preset.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("EmptyList", func(t *testing.T) {
		names, err := s.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("RoundTrip", func(t *testing.T) {
		w := arm.Pose(10, 20, 30, 40, 50)
		require.NoError(t, s.Save(ctx, "home", w))

		got, err := s.Load(ctx, "home")
		require.NoError(t, err)
		for _, j := range arm.AllJoints() {
			assert.Equal(t, w.Angle(j), got.Angle(j), "joint %s", j)
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "wave", arm.Home()))
		require.NoError(t, s.Save(ctx, "wave", arm.Pose(0, 180, 0, 180, 0)))

		got, err := s.Load(ctx, "wave")
		require.NoError(t, err)
		assert.Equal(t, arm.Pose(0, 180, 0, 180, 0), got)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := s.Load(ctx, "unknown")
		var nf *preset.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "unknown", nf.Name)
		assert.True(t, preset.IsNotFound(err))
	})

	t.Run("CaseSensitive", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, "Rest", arm.Home()))
		_, err := s.Load(ctx, "rest")
		assert.True(t, preset.IsNotFound(err))
	})

	t.Run("EmptyName", func(t *testing.T) {
		assert.ErrorIs(t, s.Save(ctx, "", arm.Home()), preset.ErrEmptyName)
	})

	t.Run("List", func(t *testing.T) {
		names, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"Rest", "home", "wave"}, names)
	})

	t.Run("StorageWordsAsNames", func(t *testing.T) {
		for _, name := range []string{"index", "names"} {
			require.NoError(t, s.Save(ctx, name, arm.Pose(1, 2, 3, 4, 5)), name)
		}
		require.NoError(t, s.Save(ctx, "later", arm.Home()))

		names, err := s.List(ctx)
		require.NoError(t, err)
		assert.Subset(t, names, []string{"Rest", "home", "wave", "index", "names", "later"})

		got, err := s.Load(ctx, "index")
		require.NoError(t, err)
		assert.Equal(t, arm.Pose(1, 2, 3, 4, 5), got)
	})
}
