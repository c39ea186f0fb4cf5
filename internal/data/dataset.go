// Package data loads the MNIST dataset and serves it as mini-batches.
package data

import (
	"fmt"
	"math/rand"
	"path/filepath"
)

// MNIST per-channel normalization constants.
const (
	NormMean = 0.1307
	NormStd  = 0.3081
)

// Dataset holds normalized images and their labels in memory.
type Dataset struct {
	Images [][]float32 // [num_samples][784]
	Labels []int32     // [num_samples]
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.Images) }

// Load reads an MNIST split from IDX files in dataDir and normalizes
// pixels to (x/255 - mean) / std.
//
// Expected files:
//
//	train-images-idx3-ubyte / train-labels-idx1-ubyte (train split)
//	t10k-images-idx3-ubyte  / t10k-labels-idx1-ubyte  (test split)
func Load(dataDir string, train bool) (*Dataset, error) {
	var imageFile, labelFile string
	if train {
		imageFile = filepath.Join(dataDir, "train-images-idx3-ubyte")
		labelFile = filepath.Join(dataDir, "train-labels-idx1-ubyte")
	} else {
		imageFile = filepath.Join(dataDir, "t10k-images-idx3-ubyte")
		labelFile = filepath.Join(dataDir, "t10k-labels-idx1-ubyte")
	}

	imagesRaw, err := readIDXImages(imageFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load images: %w", err)
	}
	labelsRaw, err := readIDXLabels(labelFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load labels: %w", err)
	}
	if len(imagesRaw) != len(labelsRaw) {
		return nil, fmt.Errorf("image count (%d) != label count (%d)", len(imagesRaw), len(labelsRaw))
	}

	images := make([][]float32, len(imagesRaw))
	labels := make([]int32, len(labelsRaw))
	for i, raw := range imagesRaw {
		img := make([]float32, len(raw))
		for j, px := range raw {
			img[j] = (float32(px)/255.0 - NormMean) / NormStd
		}
		images[i] = img
		labels[i] = int32(labelsRaw[i])
	}

	return &Dataset{Images: images, Labels: labels}, nil
}

// NewSynthetic builds a small random dataset with the given feature and
// class counts. Used by tests and smoke runs; the images are noise with
// a class-dependent offset so the labels are learnable.
func NewSynthetic(samples, features, classes int, rng *rand.Rand) *Dataset {
	images := make([][]float32, samples)
	labels := make([]int32, samples)
	for i := range images {
		label := int32(i % classes)
		img := make([]float32, features)
		for j := range img {
			img[j] = rng.Float32()*0.1 + float32(label)*0.5
		}
		images[i] = img
		labels[i] = label
	}
	return &Dataset{Images: images, Labels: labels}
}
