package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	imageMagic = 0x00000803
	labelMagic = 0x00000801

	// Width and Height of an MNIST image.
	Width  = 28
	Height = 28
	// NumClasses is the number of digit labels.
	NumClasses = 10

	maxImagePixels = 1 << 20
	preallocPixels = 1 << 22
)

type imageFileHeader struct {
	Magic     int32
	NumImages int32
	Height    int32
	Width     int32
}

type labelFileHeader struct {
	Magic     int32
	NumLabels int32
}

// ReadImages parses an IDX3 stream and returns one row per image, pixels scaled to [0, 1].
func ReadImages(r io.Reader) (*mat.Dense, error) {
	header := imageFileHeader{}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrap(err, "read image header")
	}
	if header.Magic != imageMagic {
		return nil, errors.Errorf("invalid image magic 0x%08x", header.Magic)
	}
	if header.NumImages < 0 || header.Height <= 0 || header.Width <= 0 {
		return nil, errors.Errorf("invalid image dimensions %dx%dx%d", header.NumImages, header.Height, header.Width)
	}
	numImages := int(header.NumImages)
	size := int(header.Height) * int(header.Width)
	if numImages == 0 {
		return &mat.Dense{}, nil
	}

	if size > maxImagePixels {
		return nil, errors.Errorf("image size %dx%d exceeds %d pixels", header.Height, header.Width, maxImagePixels)
	}

	// The buffer grows with the payload actually read, so a lying header fails on EOF.
	pixels := make([]byte, size)
	data := make([]float64, 0, min(numImages*size, preallocPixels))
	for i := 0; i < numImages; i++ {
		if _, err := io.ReadFull(r, pixels); err != nil {
			return nil, errors.Wrapf(err, "read image %d of %d", i, numImages)
		}
		for _, p := range pixels {
			data = append(data, float64(p)/255)
		}
	}
	return mat.NewDense(numImages, size, data), nil
}

// ReadLabels parses an IDX1 stream of digit labels.
func ReadLabels(r io.Reader) ([]int, error) {
	header := labelFileHeader{}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, errors.Wrap(err, "read label header")
	}
	if header.Magic != labelMagic {
		return nil, errors.Errorf("invalid label magic 0x%08x", header.Magic)
	}
	if header.NumLabels < 0 {
		return nil, errors.Errorf("invalid label count %d", header.NumLabels)
	}
	raw, err := io.ReadAll(io.LimitReader(r, int64(header.NumLabels)))
	if err != nil {
		return nil, errors.Wrap(err, "read labels")
	}
	if len(raw) != int(header.NumLabels) {
		return nil, errors.Errorf("read labels: got %d of %d", len(raw), header.NumLabels)
	}
	labels := make([]int, len(raw))
	for i, l := range raw {
		labels[i] = int(l)
	}
	return labels, nil
}

// openIDX opens path, transparently decompressing ".gz" files.
func openIDX(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %q", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		return struct {
			io.Reader
			io.Closer
		}{bufio.NewReader(f), f}, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "gzip %q", path)
	}
	return &gzipFile{Reader: gz, file: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if fErr := g.file.Close(); err == nil {
		err = fErr
	}
	return err
}
