// Package imageannotator is a bounding-box annotation engine for Darknet/YOLO
// style datasets.
//
// Boxes are stored next to each image in a "<stem>.txt" file, one box per line
// as "<class id> <cx> <cy> <w> <h>" with coordinates normalized to the image
// size. Class names live in "_darknet.labels" in the same directory.
//
// Basic usage:
//
//	package main
//
//	import (
//		"log"
//
//		"github.com/menta2k/image-annotator"
//		"github.com/menta2k/image-annotator/pkg/types"
//	)
//
//	func main() {
//		ann, err := imageannotator.New(imageannotator.DefaultConfig())
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		sess := ann.NewSession()
//		if err := sess.Open("./images"); err != nil {
//			log.Fatal(err)
//		}
//		defer sess.Close()
//
//		// The host reports where the image is drawn, then forwards pointer events.
//		sess.SetViewport(types.Rect{Width: 1280, Height: 720})
//		sess.Press(types.Point{X: 100, Y: 100})
//		sess.Drag(types.Point{X: 300, Y: 240})
//		sess.Release() // the box is saved to ./images/<stem>.txt
//	}
//
// The package consists of these main components:
//
// 1. Session (pkg/session): directory, class table, image switching and persistence
// 2. Interaction (pkg/interaction): pointer state machine for create, move and resize
// 3. Store (pkg/store): box collection, selection and bounded undo history
// 4. Codec (pkg/codec) and Classes (pkg/classes): the on-disk formats
// 5. Detection (pkg/detection, pkg/vision): box suggestions from a vision model or saliency
//
// A browser front end can drive a session through pkg/api, which serves the
// editor state over HTTP and accepts pointer events over a WebSocket.
package imageannotator

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"path/filepath"
	"time"

	"github.com/menta2k/image-annotator/internal/config"
	"github.com/menta2k/image-annotator/internal/utils"
	"github.com/menta2k/image-annotator/pkg/analyzer"
	"github.com/menta2k/image-annotator/pkg/classes"
	"github.com/menta2k/image-annotator/pkg/client"
	"github.com/menta2k/image-annotator/pkg/codec"
	"github.com/menta2k/image-annotator/pkg/detection"
	"github.com/menta2k/image-annotator/pkg/llamacpp"
	"github.com/menta2k/image-annotator/pkg/ollama"
	"github.com/menta2k/image-annotator/pkg/processing"
	"github.com/menta2k/image-annotator/pkg/session"
	"github.com/menta2k/image-annotator/pkg/store"
	"github.com/menta2k/image-annotator/pkg/types"
	"github.com/menta2k/image-annotator/pkg/vision"
)

// Version of the image annotator library
const Version = "1.0.0"

// Config is the annotator configuration.
type Config = config.Config

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return config.Default()
}

// Default server URLs per suggestion backend.
const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultLlamaCppURL = "http://localhost:8080"
)

// Annotator ties the editing engine to image processing and suggestions.
type Annotator struct {
	config    *Config
	processor *processing.Processor
	detector  *detection.Detector
	proposer  *vision.SaliencyProposer
	analyzer  *analyzer.DatasetAnalyzer
}

// New creates an Annotator, connecting the suggestion backend named in cfg.
func New(cfg *Config) (*Annotator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var vc client.VisionClient
	timeout := time.Duration(cfg.Suggest.TimeoutSeconds) * time.Second
	switch cfg.Suggest.Backend {
	case "ollama":
		url := cfg.Suggest.URL
		if url == "" {
			url = DefaultOllamaURL
		}
		c, err := ollama.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		c.SetTimeout(timeout)
		vc = c
	case "llamacpp":
		url := cfg.Suggest.URL
		if url == "" {
			url = DefaultLlamaCppURL
		}
		c, err := llamacpp.NewClient(url)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		c.SetTimeout(timeout)
		vc = c
	}
	return NewWithClient(cfg, vc), nil
}

// NewWithClient creates an Annotator using vc for suggestions. A nil vc
// falls back to local saliency proposals.
func NewWithClient(cfg *Config, vc client.VisionClient) *Annotator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	a := &Annotator{
		config:    cfg,
		processor: processing.NewProcessor(),
		proposer:  vision.New(),
		analyzer: analyzer.NewWithConfig(analyzer.Config{
			LabelsFile:      cfg.Files.LabelsFile,
			ImageExtensions: cfg.Files.ImageExtensions,
			MinBoxSize:      store.MinBoxSize,
		}),
	}
	if vc != nil {
		a.detector = detection.NewDetector(vc)
	}
	return a
}

// Config returns the configuration in use.
func (a *Annotator) Config() *Config {
	return a.config
}

// SessionOptions derives session options from the configuration.
func (a *Annotator) SessionOptions() session.Options {
	return session.Options{
		LabelsFile:      a.config.Files.LabelsFile,
		ImageExtensions: a.config.Files.ImageExtensions,
		HistoryLimit:    a.config.Editor.HistoryLimit,
		Settings:        a.config.InteractionSettings(),
	}
}

// NewSession creates an editing session that decodes images with the
// annotator's processor.
func (a *Annotator) NewSession() *session.Session {
	return session.New(a.processor, a.SessionOptions())
}

// SuggestFor proposes boxes for the image at imagePath. Boxes come back in
// center/size form; unlabelled ones have an empty class name.
func (a *Annotator) SuggestFor(ctx context.Context, imagePath string, classNames []string) ([]types.BoundingBox, error) {
	img, err := a.processor.LoadImage(imagePath)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}

	opts := detection.Options{
		Model:         a.config.Suggest.Model,
		Classes:       classNames,
		MinConfidence: a.config.Suggest.MinConfidence,
		Restrict:      a.config.Suggest.RestrictClasses,
	}

	if a.detector == nil {
		return detection.Convert(a.proposer.Propose(img), opts), nil
	}

	sendSize := a.config.Suggest.SendSize
	imgB64, err := a.processor.PrepareImageForModel(img, a.config.Suggest.SendFormat, sendSize, a.config.Suggest.SendQuality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image: %w", err)
	}
	opts.ImageWidth, opts.ImageHeight = sentSize(img, sendSize)

	return a.detector.Suggest(ctx, imgB64, opts)
}

// ErrNoModel is returned by CheckModel when suggestions run locally.
var ErrNoModel = errors.New("no vision model configured")

// CheckModel sends imagePath to the vision model with a short describe
// prompt and returns the reply, so a user can confirm the model receives
// images before asking it for boxes.
func (a *Annotator) CheckModel(ctx context.Context, imagePath string) (string, error) {
	if a.detector == nil {
		return "", ErrNoModel
	}
	img, err := a.processor.LoadImage(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to load image: %w", err)
	}
	sc := a.config.Suggest
	imgB64, err := a.processor.PrepareImageForModel(img, sc.SendFormat, sc.SendSize, sc.SendQuality)
	if err != nil {
		return "", fmt.Errorf("failed to prepare image: %w", err)
	}
	return a.detector.TestVision(ctx, sc.Model, imgB64)
}

// sentSize returns the dimensions of img after PrepareImageForModel.
func sentSize(img image.Image, maxDim int) (int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	if w >= h {
		return maxDim, maxInt(1, int(float64(h)*float64(maxDim)/float64(w)+0.5))
	}
	return maxInt(1, int(float64(w)*float64(maxDim)/float64(h)+0.5)), maxDim
}

// SuggestSession applies suggestions for the current image of sess as one
// undoable action and returns how many boxes were added.
func (a *Annotator) SuggestSession(ctx context.Context, sess *session.Session) (int, error) {
	cur, ok := sess.Current()
	if !ok {
		return 0, session.ErrNoImages
	}
	boxes, err := a.SuggestFor(ctx, cur.Path, sess.Classes())
	if err != nil {
		return 0, err
	}
	return sess.ApplySuggestions(boxes)
}

// RenderImage draws the annotations of imagePath onto the image and writes
// the result into the configured output directory.
func (a *Annotator) RenderImage(imagePath string, table *classes.Table) (string, error) {
	img, err := a.processor.LoadImage(imagePath)
	if err != nil {
		return "", fmt.Errorf("failed to load image: %w", err)
	}
	boxes, _, err := codec.Read(codec.AnnotationPath(imagePath), table)
	if err != nil {
		return "", err
	}

	overlay := make([]processing.OverlayBox, len(boxes))
	for i, b := range boxes {
		label := b.ClassName
		if id, ok := table.Index(b.ClassName); ok {
			label = fmt.Sprintf("%d:%s", id, b.ClassName)
		}
		overlay[i] = processing.OverlayBox{Box: b, Label: label}
	}
	out := a.processor.CreateOverlay(img, overlay, nil)

	rc := a.config.Render
	if err := utils.EnsureDir(rc.OutputDir); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outPath := utils.GenerateOutputFilename(imagePath, rc.OutputDir, "", rc.Suffix, rc.Format)
	if err := a.processor.SaveImage(out, outPath, rc.Format, rc.Quality, rc.Lossless); err != nil {
		return "", fmt.Errorf("failed to save overlay: %w", err)
	}
	return outPath, nil
}

// RenderDir renders an overlay for every image of dir. Images that fail are
// logged and skipped.
func (a *Annotator) RenderDir(dir string) (int, error) {
	table, images, err := a.openDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, img := range images {
		out, err := a.RenderImage(img, table)
		if err != nil {
			log.Printf("render: skipping %s: %v", filepath.Base(img), err)
			continue
		}
		log.Printf("render: %s -> %s", filepath.Base(img), out)
		n++
	}
	return n, nil
}

// Normalize rewrites every existing annotation file of dir in canonical form:
// six decimals, malformed lines dropped, unknown ids added to the label file.
func (a *Annotator) Normalize(dir string) (int, error) {
	table, images, err := a.openDir(dir)
	if err != nil {
		return 0, err
	}

	grew := false
	n := 0
	for _, img := range images {
		path := codec.AnnotationPath(img)
		if !utils.FileExists(path) {
			continue
		}
		boxes, changed, err := codec.Read(path, table)
		if err != nil {
			log.Printf("normalize: skipping %s: %v", filepath.Base(path), err)
			continue
		}
		grew = grew || changed
		changed, err = codec.Write(path, boxes, table)
		if err != nil {
			return n, err
		}
		grew = grew || changed
		n++
	}

	if grew {
		if err := table.Save(filepath.Join(dir, a.config.Files.LabelsFile)); err != nil {
			return n, err
		}
	}
	return n, nil
}

// Stats summarizes the annotations of dir.
func (a *Annotator) Stats(dir string) (*analyzer.Report, error) {
	return a.analyzer.AnalyzeDir(dir)
}

func (a *Annotator) openDir(dir string) (*classes.Table, []string, error) {
	if !utils.DirExists(dir) {
		return nil, nil, fmt.Errorf("directory does not exist: %s", dir)
	}
	images, err := utils.ListImageFiles(dir, a.config.Files.ImageExtensions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list images: %w", err)
	}
	table := classes.Load(filepath.Join(dir, a.config.Files.LabelsFile))
	return table, images, nil
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
