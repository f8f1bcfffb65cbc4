package dataset

import (
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"k8s.io/klog/v2"

	"mi-pretrain/internal/model"
)

// Set is an in-memory labeled image collection, one flattened image per row.
type Set struct {
	Name   string
	Images *mat.Dense
	Labels []int
}

// Len returns the number of examples.
func (s *Set) Len() int { return len(s.Labels) }

// Features returns the width of an image row.
func (s *Set) Features() int {
	if s.Len() == 0 {
		return 0
	}
	_, c := s.Images.Dims()
	return c
}

// Batch gathers the rows at indices into a model.Batch.
func (s *Set) Batch(indices []int) model.Batch {
	if len(indices) == 0 {
		return model.Batch{}
	}
	cols := s.Features()
	data := make([]float64, 0, len(indices)*cols)
	labels := make([]int, len(indices))
	for i, idx := range indices {
		data = append(data, s.Images.RawRowView(idx)...)
		labels[i] = s.Labels[idx]
	}
	return model.Batch{Inputs: mat.NewDense(len(indices), cols, data), Labels: labels}
}

// Subset returns a new Set holding the rows at indices.
func (s *Set) Subset(name string, indices []int) *Set {
	b := s.Batch(indices)
	images := b.Inputs
	if images == nil {
		images = &mat.Dense{}
	}
	return &Set{Name: name, Images: images, Labels: b.Labels}
}

// Load reads the split ("train" or "test") of the MNIST files found under dir.
func Load(dir, split string) (*Set, error) {
	tic := time.Now()
	files, err := DiscoverFiles(dir)
	if err != nil {
		return nil, err
	}
	imagesPath, labelsPath := files.Path(split, KindImages), files.Path(split, KindLabels)
	if imagesPath == "" || labelsPath == "" {
		return nil, errors.Errorf("unknown split %q", split)
	}

	rc, err := openIDX(imagesPath)
	if err != nil {
		return nil, err
	}
	images, err := ReadImages(rc)
	rc.Close()
	if err != nil {
		return nil, errors.WithMessagef(err, "parse %q", imagesPath)
	}

	rc, err = openIDX(labelsPath)
	if err != nil {
		return nil, err
	}
	labels, err := ReadLabels(rc)
	rc.Close()
	if err != nil {
		return nil, errors.WithMessagef(err, "parse %q", labelsPath)
	}

	rows, _ := images.Dims()
	if rows != len(labels) {
		return nil, errors.Errorf("%s: %d images but %d labels", split, rows, len(labels))
	}
	klog.V(1).Infof("loaded %s split: %d examples in %s", split, len(labels), time.Since(tic))
	return &Set{Name: split, Images: images, Labels: labels}, nil
}

// RandomSplit partitions set into a train part of floor(n*(1-valSplit)) rows and a
// validation part of floor(n*valSplit) rows using a permutation drawn from rng.
// When the two floors do not add up to n, the leftover rows are dropped.
func RandomSplit(set *Set, valSplit float64, rng *rand.Rand) (train, val *Set, err error) {
	if valSplit <= 0 || valSplit >= 1 {
		return nil, nil, errors.Errorf("validation split must be in (0, 1), got %g", valSplit)
	}
	n := set.Len()
	nTrain := int(float64(n) * (1 - valSplit))
	nVal := int(float64(n) * valSplit)
	perm := rng.Perm(n)
	train = set.Subset(set.Name+"-train", perm[:nTrain])
	val = set.Subset(set.Name+"-val", perm[nTrain:nTrain+nVal])
	return train, val, nil
}
