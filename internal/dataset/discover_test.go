package dataset

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverFilesBasic(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "train-images-idx3-ubyte.gz"))
	mustWrite(t, filepath.Join(dir, "train-labels-idx1-ubyte.gz"))
	mustWrite(t, filepath.Join(dir, "nested", "t10k-images-idx3-ubyte"))
	mustWrite(t, filepath.Join(dir, "t10k-labels.idx1-ubyte"))
	mustWrite(t, filepath.Join(dir, "ignore.txt"))

	files, err := DiscoverFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "train-images-idx3-ubyte.gz"), files.Path(SplitTrain, KindImages))
	assert.Equal(t, filepath.Join(dir, "nested", "t10k-images-idx3-ubyte"), files.Path(SplitTest, KindImages))
	assert.Equal(t, filepath.Join(dir, "t10k-labels.idx1-ubyte"), files.Path(SplitTest, KindLabels))
}

func TestDiscoverFilesPrefersUncompressed(t *testing.T) {
	dir := t.TempDir()
	writeFakeMNIST(t, dir, 3, 2)
	mustWrite(t, filepath.Join(dir, "train-images-idx3-ubyte"))

	files, err := DiscoverFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "train-images-idx3-ubyte"), files.Path(SplitTrain, KindImages))
}

func TestDiscoverFilesReportsMissing(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "train-images-idx3-ubyte.gz"))

	_, err := DiscoverFiles(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "train/labels")
	assert.Contains(t, err.Error(), "test/images")
}

func mustWrite(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))
}

// encodeImages builds an IDX3 stream of n side x side images; pixel j of image i is (i+j)%256.
func encodeImages(t *testing.T, n, side int) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, binary.Write(buf, binary.BigEndian, imageFileHeader{
		Magic: imageMagic, NumImages: int32(n), Height: int32(side), Width: int32(side),
	}))
	for i := 0; i < n; i++ {
		for j := 0; j < side*side; j++ {
			buf.WriteByte(byte((i + j) % 256))
		}
	}
	return buf.Bytes()
}

// encodeLabels builds an IDX1 stream with label i%10 at position i.
func encodeLabels(t *testing.T, n int) []byte {
	t.Helper()
	buf := &bytes.Buffer{}
	require.NoError(t, binary.Write(buf, binary.BigEndian, labelFileHeader{Magic: labelMagic, NumLabels: int32(n)}))
	for i := 0; i < n; i++ {
		buf.WriteByte(byte(i % NumClasses))
	}
	return buf.Bytes()
}

func writeGzip(t *testing.T, path string, payload []byte) {
	t.Helper()
	buf := &bytes.Buffer{}
	zw := gzip.NewWriter(buf)
	_, err := zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// writeFakeMNIST writes gzip'd train and test IDX files with n examples each.
func writeFakeMNIST(t *testing.T, dir string, n, side int) {
	t.Helper()
	for _, prefix := range []string{"train", "t10k"} {
		writeGzip(t, filepath.Join(dir, prefix+"-images-idx3-ubyte.gz"), encodeImages(t, n, side))
		writeGzip(t, filepath.Join(dir, prefix+"-labels-idx1-ubyte.gz"), encodeLabels(t, n))
	}
}
