package dataset

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadImagesScalesPixels(t *testing.T) {
	images, err := ReadImages(bytes.NewReader(encodeImages(t, 2, 2)))
	require.NoError(t, err)
	r, c := images.Dims()
	require.Equal(t, 2, r)
	require.Equal(t, 4, c)
	assert.Equal(t, []float64{0, 1.0 / 255, 2.0 / 255, 3.0 / 255}, images.RawRowView(0))
	assert.Equal(t, 4.0/255, images.At(1, 3))
}

func TestReadImagesRejectsBadMagic(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, binary.Write(buf, binary.BigEndian, imageFileHeader{Magic: labelMagic, NumImages: 1, Height: 1, Width: 1}))
	_, err := ReadImages(buf)
	assert.Error(t, err)
}

func TestReadImagesTruncated(t *testing.T) {
	payload := encodeImages(t, 3, 2)
	_, err := ReadImages(bytes.NewReader(payload[:len(payload)-1]))
	assert.Error(t, err)
}

func TestReadImagesHeaderLargerThanPayload(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, binary.Write(buf, binary.BigEndian, imageFileHeader{Magic: imageMagic, NumImages: 1 << 30, Height: Height, Width: Width}))
	require.Equal(t, 16, buf.Len())
	_, err := ReadImages(buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read image 0")

	buf.Reset()
	require.NoError(t, binary.Write(buf, binary.BigEndian, imageFileHeader{Magic: imageMagic, NumImages: 1, Height: 1 << 15, Width: 1 << 15}))
	_, err = ReadImages(buf)
	assert.Error(t, err)
}

func TestReadLabelsHeaderLargerThanPayload(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, binary.Write(buf, binary.BigEndian, labelFileHeader{Magic: labelMagic, NumLabels: 1 << 30}))
	buf.Write([]byte{1, 2, 3})
	_, err := ReadLabels(buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "got 3 of")
}

func TestReadLabels(t *testing.T) {
	labels, err := ReadLabels(bytes.NewReader(encodeLabels(t, 12)))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 0, 1}, labels)

	_, err = ReadLabels(bytes.NewReader(encodeImages(t, 1, 1)))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFakeMNIST(t, dir, 7, 3)

	for _, split := range []string{SplitTrain, SplitTest} {
		set, err := Load(dir, split)
		require.NoError(t, err)
		assert.Equal(t, 7, set.Len())
		assert.Equal(t, 9, set.Features())
		assert.Equal(t, 6, set.Labels[6])
	}
	_, err := Load(dir, "validation")
	assert.Error(t, err)
}

func TestRandomSplit(t *testing.T) {
	dir := t.TempDir()
	writeFakeMNIST(t, dir, 50, 2)
	set, err := Load(dir, SplitTrain)
	require.NoError(t, err)

	train, val, err := RandomSplit(set, 0.2, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, 40, train.Len())
	assert.Equal(t, 10, val.Len())

	// Rows are unique by their first pixel, so the two parts must not overlap.
	seen := map[float64]bool{}
	for _, part := range []*Set{train, val} {
		for i := 0; i < part.Len(); i++ {
			first := part.Images.At(i, 0)
			assert.False(t, seen[first], "row %v appears twice", first)
			seen[first] = true
		}
	}

	again, _, err := RandomSplit(set, 0.2, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, train.Labels, again.Labels)

	_, _, err = RandomSplit(set, 1.5, rand.New(rand.NewSource(1)))
	assert.Error(t, err)
}
