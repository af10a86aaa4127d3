package analyzer

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/menta2k/image-annotator/internal/utils"
	"github.com/menta2k/image-annotator/pkg/classes"
	"github.com/menta2k/image-annotator/pkg/codec"
	"github.com/menta2k/image-annotator/pkg/store"
	"github.com/menta2k/image-annotator/pkg/types"
)

// DatasetAnalyzer summarizes the annotations of an image directory without
// modifying it.
type DatasetAnalyzer struct {
	config Config
}

// Config holds configuration for the dataset analyzer
type Config struct {
	LabelsFile      string
	ImageExtensions []string
	MinBoxSize      float64
}

// New creates a new DatasetAnalyzer with default configuration
func New() *DatasetAnalyzer {
	return &DatasetAnalyzer{
		config: Config{
			LabelsFile:      classes.LabelsFileName,
			ImageExtensions: utils.DefaultImageExtensions,
			MinBoxSize:      store.MinBoxSize,
		},
	}
}

// NewWithConfig creates a new DatasetAnalyzer with custom configuration
func NewWithConfig(config Config) *DatasetAnalyzer {
	return &DatasetAnalyzer{config: config}
}

// ClassCount is the number of boxes of one class.
type ClassCount struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Boxes int    `json:"boxes"`
}

// Issue is a problem found in one annotation file.
type Issue struct {
	Image   string `json:"image"`
	Box     int    `json:"box"`
	Problem string `json:"problem"`
}

func (i Issue) String() string {
	if i.Box < 0 {
		return fmt.Sprintf("%s: %s", i.Image, i.Problem)
	}
	return fmt.Sprintf("%s box %d: %s", i.Image, i.Box, i.Problem)
}

// Report contains dataset statistics for a directory
type Report struct {
	Dir       string       `json:"dir"`
	Images    int          `json:"images"`
	Annotated int          `json:"annotated"`
	Boxes     int          `json:"boxes"`
	Classes   []ClassCount `json:"classes"`
	Issues    []Issue      `json:"issues,omitempty"`
}

// Unannotated returns the number of images with no boxes.
func (r *Report) Unannotated() int {
	return r.Images - r.Annotated
}

// AnalyzeDir reads every annotation file of dir against its label file.
// Neither the label file nor the annotations are written.
func (a *DatasetAnalyzer) AnalyzeDir(dir string) (*Report, error) {
	if !utils.DirExists(dir) {
		return nil, fmt.Errorf("directory does not exist: %s", dir)
	}
	images, err := utils.ListImageFiles(dir, a.config.ImageExtensions)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	table := classes.Load(filepath.Join(dir, a.config.LabelsFile))
	known := table.Len()
	counts := map[string]int{}

	report := &Report{Dir: dir, Images: len(images)}
	for _, img := range images {
		name := filepath.Base(img)
		boxes, grew, err := codec.Read(codec.AnnotationPath(img), table)
		if err != nil {
			report.Issues = append(report.Issues, Issue{Image: name, Box: -1, Problem: err.Error()})
			continue
		}
		if grew {
			report.Issues = append(report.Issues, Issue{Image: name, Box: -1, Problem: "uses class ids missing from the label file"})
		}
		if len(boxes) > 0 {
			report.Annotated++
		}
		report.Boxes += len(boxes)
		for i, b := range boxes {
			counts[b.ClassName]++
			if err := a.ValidateBox(b); err != nil {
				report.Issues = append(report.Issues, Issue{Image: name, Box: i, Problem: err.Error()})
			}
		}
	}

	for id, n := range table.Names() {
		if id < known || counts[n] > 0 {
			report.Classes = append(report.Classes, ClassCount{ID: id, Name: n, Boxes: counts[n]})
		}
	}
	sort.SliceStable(report.Classes, func(i, j int) bool {
		return report.Classes[i].ID < report.Classes[j].ID
	})
	return report, nil
}

// ValidateBox checks that a box lies inside the image and is not degenerate.
func (a *DatasetAnalyzer) ValidateBox(b types.BoundingBox) error {
	if b.W < a.config.MinBoxSize || b.H < a.config.MinBoxSize {
		return fmt.Errorf("box too small: %.6fx%.6f (minimum: %g)", b.W, b.H, a.config.MinBoxSize)
	}
	left, top, right, bottom := b.Edges()
	const eps = 1e-6
	if left < -eps || top < -eps || right > 1+eps || bottom > 1+eps {
		return fmt.Errorf("box extends outside the image: [%.4f %.4f %.4f %.4f]", left, top, right, bottom)
	}
	return nil
}
