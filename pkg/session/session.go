package session

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/menta2k/image-annotator/internal/utils"
	"github.com/menta2k/image-annotator/pkg/classes"
	"github.com/menta2k/image-annotator/pkg/codec"
	"github.com/menta2k/image-annotator/pkg/geometry"
	"github.com/menta2k/image-annotator/pkg/interaction"
	"github.com/menta2k/image-annotator/pkg/store"
	"github.com/menta2k/image-annotator/pkg/types"
)

var (
	// ErrNoImages is returned when the opened directory holds no images.
	ErrNoImages = errors.New("no images loaded")
	// ErrIndexOutOfRange is returned for an image index outside the list.
	ErrIndexOutOfRange = errors.New("image index out of range")
)

// ImageLoader supplies the pixel size of an image file.
type ImageLoader interface {
	Dimensions(path string) (int, int, error)
}

// Options configure a session.
type Options struct {
	LabelsFile      string
	ImageExtensions []string
	HistoryLimit    int
	Settings        interaction.Settings
}

// DefaultOptions returns the stock editor options.
func DefaultOptions() Options {
	return Options{
		LabelsFile:      classes.LabelsFileName,
		ImageExtensions: utils.DefaultImageExtensions,
		HistoryLimit:    store.DefaultHistoryLimit,
		Settings:        interaction.DefaultSettings(),
	}
}

// Session is the editing context for one image directory. It owns the class
// table shared by every image of the directory, the image list and the box
// store of the current image. A Session is not safe for concurrent use.
type Session struct {
	opts    Options
	loader  ImageLoader
	dir     string
	table   *classes.Table
	images  []string
	index   int
	current *types.ImageEntry
	active  int
	store   *store.Store
	machine *interaction.Machine
}

// New creates an empty session. Call Open before editing.
func New(loader ImageLoader, opts Options) *Session {
	def := DefaultOptions()
	if opts.LabelsFile == "" {
		opts.LabelsFile = def.LabelsFile
	}
	if len(opts.ImageExtensions) == 0 {
		opts.ImageExtensions = def.ImageExtensions
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = def.HistoryLimit
	}
	if opts.Settings == (interaction.Settings{}) {
		opts.Settings = def.Settings
	}

	s := &Session{
		opts:   opts,
		loader: loader,
		table:  classes.New(),
		index:  -1,
		store:  store.New(opts.HistoryLimit),
	}
	s.machine = interaction.New(s.store, picker{s}, s, opts.Settings)
	return s
}

// picker exposes the active class and class ids to the state machine.
type picker struct{ s *Session }

func (p picker) ActiveClass() string           { return p.s.ActiveClass() }
func (p picker) Index(name string) (int, bool) { return p.s.table.Index(name) }

// Open loads the class table of dir, lists its images and loads the first
// one. A directory without images is opened anyway and ErrNoImages is
// returned so the caller can Reload later.
func (s *Session) Open(dir string) error {
	if !utils.DirExists(dir) {
		return fmt.Errorf("image directory does not exist: %s", dir)
	}
	if err := s.Persist(); err != nil {
		log.Printf("session: could not save %s before opening %s: %v", s.currentPath(), dir, err)
	}

	s.dir = dir
	s.loadClasses()
	return s.loadList()
}

// Reload re-lists the directory and re-reads the class table, then loads the
// first image.
func (s *Session) Reload() error {
	if s.dir == "" {
		return ErrNoImages
	}
	if err := s.Persist(); err != nil {
		log.Printf("session: could not save %s before reload: %v", s.currentPath(), err)
	}
	s.loadClasses()
	return s.loadList()
}

func (s *Session) labelsPath() string {
	return filepath.Join(s.dir, s.opts.LabelsFile)
}

func (s *Session) loadClasses() {
	path := s.labelsPath()
	_, statErr := os.Stat(path)
	s.table = classes.Load(path)
	if errors.Is(statErr, os.ErrNotExist) {
		if err := s.table.Save(path); err != nil {
			log.Printf("session: could not create label file: %v", err)
		}
	}
	if s.active >= s.table.Len() {
		s.active = 0
	}
}

func (s *Session) loadList() error {
	images, err := utils.ListImageFiles(s.dir, s.opts.ImageExtensions)
	if err != nil {
		return fmt.Errorf("failed to list images: %w", err)
	}
	s.images = images
	s.unload()
	if len(images) == 0 {
		return ErrNoImages
	}
	return s.load(0)
}

// unload drops the current image without persisting it.
func (s *Session) unload() {
	s.machine.Cancel()
	s.store.Reset()
	s.current = nil
	s.index = -1
}

// LoadImage persists the current image and loads image i.
func (s *Session) LoadImage(i int) error {
	if len(s.images) == 0 {
		return ErrNoImages
	}
	if i < 0 || i >= len(s.images) {
		return fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(s.images))
	}
	if err := s.Persist(); err != nil {
		log.Printf("session: could not save %s: %v", s.currentPath(), err)
	}
	return s.load(i)
}

// Switch moves to image i. Switching to the current image does nothing.
func (s *Session) Switch(i int) error {
	if s.current != nil && i == s.index {
		return nil
	}
	return s.LoadImage(i)
}

// Next moves to the following image, wrapping to the first.
func (s *Session) Next() error {
	if len(s.images) == 0 {
		return ErrNoImages
	}
	return s.LoadImage((s.index + 1) % len(s.images))
}

// Prev moves to the preceding image, wrapping to the last.
func (s *Session) Prev() error {
	if len(s.images) == 0 {
		return ErrNoImages
	}
	i := s.index - 1
	if i < 0 {
		i = len(s.images) - 1
	}
	return s.LoadImage(i)
}

// load reads image i and its annotations. The previous image is not
// persisted here.
func (s *Session) load(i int) error {
	path := s.images[i]
	w, h, err := s.loader.Dimensions(path)
	if err != nil {
		return fmt.Errorf("failed to load image %s: %w", filepath.Base(path), err)
	}

	s.unload()
	boxes, grew, err := codec.Read(codec.AnnotationPath(path), s.table)
	if err != nil {
		log.Printf("session: %v", err)
	}
	s.store.Load(boxes)
	s.index = i
	s.current = &types.ImageEntry{Path: path, Width: w, Height: h}

	if grew {
		s.saveClasses()
	}
	return nil
}

func (s *Session) saveClasses() error {
	if s.dir == "" {
		return nil
	}
	if err := s.table.Save(s.labelsPath()); err != nil {
		log.Printf("session: could not save labels: %v", err)
		return err
	}
	return nil
}

func (s *Session) currentPath() string {
	if s.current == nil {
		return ""
	}
	return s.current.Path
}

// Persist writes the annotations of the current image, and the label file
// when writing introduced new classes. Failures are logged and returned; the
// in-memory state is kept either way.
func (s *Session) Persist() error {
	if s.current == nil {
		return nil
	}
	grew, err := codec.Write(codec.AnnotationPath(s.current.Path), s.store.Boxes(), s.table)
	if grew {
		if lerr := s.saveClasses(); lerr != nil && err == nil {
			err = lerr
		}
	}
	if err != nil {
		log.Printf("session: could not save annotations for %s: %v", filepath.Base(s.current.Path), err)
	}
	return err
}

// Save persists the current image on request.
func (s *Session) Save() error {
	return s.Persist()
}

// Close persists the current image before the session is discarded.
func (s *Session) Close() error {
	s.machine.Cancel()
	return s.Persist()
}

// AddClass appends name to the class table, saves the label file when the
// table changed and makes name the active class.
func (s *Session) AddClass(name string) (int, error) {
	id, added := s.table.Add(name)
	if id < 0 {
		return -1, fmt.Errorf("class name cannot be empty")
	}
	s.active = id
	if added {
		if err := s.saveClasses(); err != nil {
			return id, err
		}
	}
	return id, nil
}

// SetActiveClass selects the class used for new boxes.
func (s *Session) SetActiveClass(id int) error {
	if _, ok := s.table.Name(id); !ok {
		return fmt.Errorf("%w: id %d", classes.ErrUnknownClass, id)
	}
	s.active = id
	return nil
}

// ActiveClass returns the name of the class used for new boxes.
func (s *Session) ActiveClass() string {
	if name, ok := s.table.Name(s.active); ok {
		return name
	}
	return classes.DefaultClass
}

// ActiveClassID returns the table id of the active class.
func (s *Session) ActiveClassID() int {
	return s.active
}

// Classes returns the class names in id order.
func (s *Session) Classes() []string {
	return s.table.Names()
}

// Table returns the class table of the open directory.
func (s *Session) Table() *classes.Table {
	return s.table
}

// Dir returns the opened directory.
func (s *Session) Dir() string {
	return s.dir
}

// Images returns the image paths of the directory in display order.
func (s *Session) Images() []string {
	out := make([]string, len(s.images))
	copy(out, s.images)
	return out
}

// Current returns the loaded image.
func (s *Session) Current() (types.ImageEntry, bool) {
	if s.current == nil {
		return types.ImageEntry{}, false
	}
	return *s.current, true
}

// Index returns the position of the current image, or -1.
func (s *Session) Index() int {
	return s.index
}

// Boxes returns a copy of the current image's boxes.
func (s *Session) Boxes() []types.BoundingBox {
	return s.store.Boxes()
}

// Machine exposes the interaction state machine of the session.
func (s *Session) Machine() *interaction.Machine {
	return s.machine
}

// SetImageRect sets the screen rectangle the current image is drawn in.
func (s *Session) SetImageRect(r types.Rect) {
	s.machine.SetImageRect(r)
}

// SetViewport fits the current image into the available area and uses the
// result as the image rectangle.
func (s *Session) SetViewport(available types.Rect) (types.Rect, error) {
	if s.current == nil {
		return types.Rect{}, ErrNoImages
	}
	r := geometry.FitRect(s.current.Width, s.current.Height, available)
	s.machine.SetImageRect(r)
	return r, nil
}

// Press forwards a pointer press to the state machine.
func (s *Session) Press(pos types.Point) error {
	if s.current == nil {
		return nil
	}
	return s.machine.Press(pos)
}

// Drag forwards a pointer move to the state machine.
func (s *Session) Drag(pos types.Point) {
	if s.current == nil {
		return
	}
	s.machine.Drag(pos)
}

// Release forwards a pointer release to the state machine.
func (s *Session) Release() error {
	if s.current == nil {
		return nil
	}
	return s.machine.Release()
}

// Select selects box i, or clears the selection when i is negative.
func (s *Session) Select(i int) bool {
	if i < 0 {
		s.store.ClearSelection()
		return true
	}
	return s.machine.Select(i)
}

// Undo restores the previous snapshot of the current image.
func (s *Session) Undo() (bool, error) {
	return s.machine.Undo()
}

// DeleteSelected removes the selected box.
func (s *Session) DeleteSelected() (bool, error) {
	return s.machine.DeleteSelected()
}

// DuplicateSelected copies the selected box.
func (s *Session) DuplicateSelected() (bool, error) {
	return s.machine.DuplicateSelected()
}

// ReassignSelected gives the selected box the class with table id.
func (s *Session) ReassignSelected(id int) (bool, error) {
	name, ok := s.table.Name(id)
	if !ok {
		return false, fmt.Errorf("%w: id %d", classes.ErrUnknownClass, id)
	}
	return s.machine.ReassignSelected(name)
}

// AssignActiveClass gives the selected box the active class.
func (s *Session) AssignActiveClass() (bool, error) {
	return s.machine.AssignActiveClass()
}

// ApplySuggestions appends boxes as a single undoable action. Unknown class
// names are added to the table when the annotations are persisted.
func (s *Session) ApplySuggestions(boxes []types.BoundingBox) (int, error) {
	if s.current == nil {
		return 0, ErrNoImages
	}
	if len(boxes) == 0 {
		return 0, nil
	}
	s.machine.Cancel()
	s.store.PushHistory()
	for _, b := range boxes {
		if b.ClassName == "" {
			b.ClassName = s.ActiveClass()
		}
		s.store.Add(b)
	}
	return len(boxes), s.Persist()
}
