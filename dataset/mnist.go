package dataset

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	imagesMagic = 2051
	labelsMagic = 2049

	// upper bound on the payload of one IDX file; MNIST train images are ~47 MB
	maxIDXBytes = 1 << 30
)

// standard MNIST file names, gzip form
const (
	trainImagesFile = "train-images-idx3-ubyte.gz"
	trainLabelsFile = "train-labels-idx1-ubyte.gz"
	testImagesFile  = "t10k-images-idx3-ubyte.gz"
	testLabelsFile  = "t10k-labels-idx1-ubyte.gz"
)

// MNIST keeps the raw bytes and scales to [0, 1] on Get, the way ToTensor would.
type MNIST struct {
	rows, cols int
	images     []byte
	labels     []byte
}

func (m *MNIST) Len() int     { return len(m.labels) }
func (m *MNIST) Shape() []int { return []int{1, m.rows, m.cols} }

func (m *MNIST) Get(i int) (Sample, error) {
	if i < 0 || i >= len(m.labels) {
		return Sample{}, fmt.Errorf("mnist: index %d out of range [0, %d)", i, len(m.labels))
	}
	size := m.rows * m.cols
	raw := m.images[i*size : (i+1)*size]
	pixels := make([]float64, size)
	for j, v := range raw {
		pixels[j] = float64(v) / 255.0
	}
	return Sample{Pixels: pixels, Label: int(m.labels[i])}, nil
}

// LoadMNIST reads the training (train=true) or test split from root.
// each file may be present as name.gz or uncompressed without the suffix.
// with download set, missing files are fetched into root first.
func LoadMNIST(root string, train, download bool) (*MNIST, error) {
	imagesName, labelsName := testImagesFile, testLabelsFile
	if train {
		imagesName, labelsName = trainImagesFile, trainLabelsFile
	}

	if download {
		for _, name := range []string{imagesName, labelsName} {
			if _, err := locate(root, name); err == nil {
				continue
			}
			if err := Download(root, name); err != nil {
				return nil, err
			}
		}
	}

	imagesPath, err := locate(root, imagesName)
	if err != nil {
		return nil, err
	}
	labelsPath, err := locate(root, labelsName)
	if err != nil {
		return nil, err
	}

	var m MNIST
	if err := readIDX(imagesPath, func(r io.Reader) error {
		m.rows, m.cols, m.images, err = parseImages(r)
		return err
	}); err != nil {
		return nil, err
	}
	if err := readIDX(labelsPath, func(r io.Reader) error {
		m.labels, err = parseLabels(r)
		return err
	}); err != nil {
		return nil, err
	}

	if n := len(m.images) / (m.rows * m.cols); n != len(m.labels) {
		return nil, fmt.Errorf("mnist: %s has %d images but %s has %d labels", imagesPath, n, labelsPath, len(m.labels))
	}
	return &m, nil
}

// locate finds name (a .gz file) or its uncompressed twin under root.
func locate(root, gzName string) (string, error) {
	candidates := []string{
		filepath.Join(root, gzName),
		filepath.Join(root, strings.TrimSuffix(gzName, ".gz")),
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("mnist: %s not found under %s (enable download or place the file there)", gzName, root)
}

// readIDX opens path, transparently gunzipping .gz files, and hands the stream to parse.
func readIDX(path string, parse func(io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("mnist: %w", err)
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("mnist: gzip %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}
	if err := parse(r); err != nil {
		return fmt.Errorf("mnist: %s: %w", path, err)
	}
	return nil
}

// readMagic reads the leading big-endian int32 and rejects anything but want.
func readMagic(r io.Reader, want int32, kind string) error {
	var magic int32
	if err := binary.Read(r, binary.BigEndian, &magic); err != nil {
		return fmt.Errorf("reading %s magic number: %w", kind, err)
	}
	if magic != want {
		return fmt.Errorf("invalid magic number for %s file: %d", kind, magic)
	}
	return nil
}

// parseImages reads an IDX3 stream: magic, count, rows, cols (big-endian int32), then pixels.
func parseImages(r io.Reader) (rows, cols int, pixels []byte, err error) {
	if err := readMagic(r, imagesMagic, "images"); err != nil {
		return 0, 0, nil, err
	}
	var header [3]int32
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return 0, 0, nil, fmt.Errorf("reading images header: %w", err)
	}
	n, rows, cols := int(header[0]), int(header[1]), int(header[2])
	if n < 0 || rows <= 0 || cols <= 0 {
		return 0, 0, nil, fmt.Errorf("invalid images header: count=%d rows=%d cols=%d", n, rows, cols)
	}
	// checked by division so a corrupt header cannot overflow the product
	if rows > maxIDXBytes/cols || (n > 0 && n > maxIDXBytes/(rows*cols)) {
		return 0, 0, nil, fmt.Errorf("images header too large: count=%d rows=%d cols=%d (limit %d bytes)", n, rows, cols, maxIDXBytes)
	}

	pixels = make([]byte, n*rows*cols)
	if _, err := io.ReadFull(r, pixels); err != nil {
		return 0, 0, nil, fmt.Errorf("reading %d images: %w", n, err)
	}
	return rows, cols, pixels, nil
}

// parseLabels reads an IDX1 stream: magic, count (big-endian int32), then one byte per label.
func parseLabels(r io.Reader) ([]byte, error) {
	// 2049 is a magic number used to distinguish label files from image files
	if err := readMagic(r, labelsMagic, "labels"); err != nil {
		return nil, err
	}
	var count int32
	if err := binary.Read(r, binary.BigEndian, &count); err != nil {
		return nil, fmt.Errorf("reading labels header: %w", err)
	}
	if count < 0 || int(count) > maxIDXBytes {
		return nil, fmt.Errorf("invalid labels count %d", count)
	}

	labels := make([]byte, count)
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, fmt.Errorf("reading %d labels: %w", count, err)
	}
	return labels, nil
}
