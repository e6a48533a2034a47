package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend_SnapshotRoundTrip(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			_, err := b.GetSnapshot(ctx, 5)
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.PutSnapshot(ctx, 5, []byte("five")))
			got, err := b.GetSnapshot(ctx, 5)
			require.NoError(t, err)
			assert.Equal(t, []byte("five"), got)

			require.NoError(t, b.PutSnapshot(ctx, 5, []byte("five again")))
			got, err = b.GetSnapshot(ctx, 5)
			require.NoError(t, err)
			assert.Equal(t, []byte("five again"), got)
		})
	}
}

func TestBackend_HeightsAscending(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			heights, err := b.SnapshotHeights(ctx)
			require.NoError(t, err)
			assert.Empty(t, heights)

			// 256 and 1 differ in byte length; ordering must still be numeric
			for _, h := range []int64{240144, 1, 256, 240000, 240001} {
				require.NoError(t, b.PutSnapshot(ctx, h, []byte{byte(h)}))
			}
			require.NoError(t, b.PutNamed(ctx, "payment_records", []byte("x")))

			heights, err = b.SnapshotHeights(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 256, 240000, 240001, 240144}, heights)
		})
	}
}

func TestBackend_DeleteSnapshots(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()
			for h := int64(1); h <= 4; h++ {
				require.NoError(t, b.PutSnapshot(ctx, h, []byte("s")))
			}

			require.NoError(t, b.DeleteSnapshots(ctx, nil))
			require.NoError(t, b.DeleteSnapshots(ctx, []int64{1, 3, 99}))

			heights, err := b.SnapshotHeights(ctx)
			require.NoError(t, err)
			assert.Equal(t, []int64{2, 4}, heights)

			_, err = b.GetSnapshot(ctx, 3)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestBackend_Named(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			_, err := b.GetNamed(ctx, "static_data")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, b.PutNamed(ctx, "static_data", []byte("v1")))
			require.NoError(t, b.PutNamed(ctx, "static_data", []byte("v2")))
			require.NoError(t, b.PutNamed(ctx, "payment_records", []byte("p")))

			got, err := b.GetNamed(ctx, "static_data")
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), got)

			heights, err := b.SnapshotHeights(ctx)
			require.NoError(t, err)
			assert.Empty(t, heights)
		})
	}
}

func TestMemory_CopiesData(t *testing.T) {
	ctx := t.Context()
	m := NewMemory()

	data := []byte("abc")
	require.NoError(t, m.PutSnapshot(ctx, 1, data))
	data[0] = 'z'

	got, err := m.GetSnapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)

	got[1] = 'z'
	again, err := m.GetSnapshot(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestSnapshotKey_RoundTrip(t *testing.T) {
	for _, h := range []int64{0, 1, 143, 144, 240000, 1 << 40} {
		got, err := decodeSnapshotKey(snapshotKey(h))
		require.NoError(t, err)
		assert.Equal(t, h, got)
	}

	_, err := decodeSnapshotKey(namedKey("static_data"))
	assert.Error(t, err)
}
