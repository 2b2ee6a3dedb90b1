package classify

import (
	"bufio"
	"fmt"
	"image"
	"os"
	"strings"
	"sync"

	"gocv.io/x/gocv"

	"github.com/ironsheep/sheet-music-mcp/internal/imaging"
)

// DNNClassifier runs an exported duration model through OpenCV's DNN module.
//
// The model takes one 96×96 BGR image scaled to [0,1] and produces one score
// per class, in the order of the label file. A gocv.Net is not safe for
// concurrent Forward calls, so Classify serializes on a mutex.
type DNNClassifier struct {
	mu     sync.Mutex
	net    gocv.Net
	labels []string
}

// NewDNNClassifier loads a model file (ONNX, TensorFlow .pb, Caffe, ...) and
// its newline-separated class labels.
func NewDNNClassifier(modelPath, labelsPath string) (*DNNClassifier, error) {
	labels, err := LoadLabels(labelsPath)
	if err != nil {
		return nil, err
	}
	for _, l := range labels {
		if _, err := ParseLabel(l); err != nil {
			return nil, fmt.Errorf("label file %s: %w", labelsPath, err)
		}
	}

	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model not found: %s", modelPath)
	}
	net := gocv.ReadNet(modelPath, "")
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("failed to read model: %s", modelPath)
	}
	return &DNNClassifier{net: net, labels: labels}, nil
}

// LoadLabels reads one class label per line, skipping blank lines.
func LoadLabels(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels: %w", err)
	}
	defer f.Close()

	var labels []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if l := strings.TrimSpace(sc.Text()); l != "" {
			labels = append(labels, l)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	if len(labels) == 0 {
		return nil, fmt.Errorf("no labels in %s", path)
	}
	return labels, nil
}

// Labels returns the model's class labels in output order.
func (c *DNNClassifier) Labels() []string {
	return append([]string(nil), c.labels...)
}

// Classify runs the model on patch and returns the duration of the best class.
func (c *DNNClassifier) Classify(patch image.Image) (Duration, error) {
	mat, err := imaging.BGRMat(patch)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrClassification, err)
	}
	defer mat.Close()

	blob := gocv.BlobFromImage(mat, 1.0/255.0, image.Pt(PatchSize, PatchSize), gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	c.mu.Lock()
	c.net.SetInput(blob, "")
	prob := c.net.Forward("")
	c.mu.Unlock()
	defer prob.Close()

	if prob.Empty() || prob.Total() != len(c.labels) {
		return 0, fmt.Errorf("%w: model produced %d scores for %d labels", ErrClassification, prob.Total(), len(c.labels))
	}

	_, _, _, maxLoc := gocv.MinMaxLoc(prob)
	idx := maxLoc.X
	if idx < 0 || idx >= len(c.labels) {
		return 0, fmt.Errorf("%w: class index %d out of range", ErrClassification, idx)
	}
	return ParseLabel(c.labels[idx])
}

// Close releases the network.
func (c *DNNClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.net.Close()
}
