// Package classes keeps the ordered list of class names shared by every image
// in a folder and persisted to a darknet-style label file.
package classes

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultClass is the placeholder entry of a fresh table. When it is the
	// first entry, numeric ids in annotation files are shifted by one.
	DefaultClass = "object"

	// LabelsFileName is the label file kept next to the images.
	LabelsFileName = "_darknet.labels"

	// MaxClassID bounds table growth from numeric tokens. Larger ids are
	// treated as literal names.
	MaxClassID = 4096
)

// ErrUnknownClass is returned by Resolve for ids outside the table.
var ErrUnknownClass = errors.New("unknown class id")

// Table maps class names to stable integer ids. Insertion order is id order.
type Table struct {
	names []string
	index map[string]int
}

// New returns a table holding only DefaultClass.
func New() *Table {
	return FromNames(nil)
}

// FromNames builds a table from names, skipping blanks and duplicates. An
// empty result falls back to DefaultClass.
func FromNames(names []string) *Table {
	t := &Table{index: make(map[string]int)}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		t.appendName(n)
	}
	if len(t.names) == 0 {
		t.appendName(DefaultClass)
	}
	return t
}

// LabelsPath returns the label file location for an image directory.
func LabelsPath(dir string) string {
	return filepath.Join(dir, LabelsFileName)
}

// Load reads a newline-delimited label file. A missing, empty or unreadable
// file yields the default table; read errors are logged, never returned.
func Load(path string) *Table {
	f, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("classes: using default labels, cannot open %s: %v", path, err)
		}
		return New()
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		log.Printf("classes: using default labels, cannot read %s: %v", path, err)
		return New()
	}
	return t
}

// Read parses label names from r, one per line.
func Read(r io.Reader) (*Table, error) {
	var names []string
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			names = append(names, line)
		}
		if err == io.EOF {
			return FromNames(names), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Save writes one class name per line, replacing the file.
func (t *Table) Save(path string) error {
	var buf bytes.Buffer
	if _, err := t.WriteTo(&buf); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write label file: %w", err)
	}
	return nil
}

// WriteTo writes the table in label file form.
func (t *Table) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, n := range t.names {
		k, err := io.WriteString(w, n+"\n")
		total += int64(k)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Names returns a copy of the class names in id order.
func (t *Table) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Len returns the number of classes.
func (t *Table) Len() int {
	return len(t.names)
}

// Name returns the class at id.
func (t *Table) Name(id int) (string, bool) {
	if id < 0 || id >= len(t.names) {
		return "", false
	}
	return t.names[id], true
}

// Index returns the id of name without modifying the table.
func (t *Table) Index(name string) (int, bool) {
	id, ok := t.index[name]
	return id, ok
}

// Contains reports whether name is in the table.
func (t *Table) Contains(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Offset is the shift applied to numeric ids in annotation files: 1 when the
// first entry is DefaultClass, otherwise 0.
func (t *Table) Offset() int {
	if len(t.names) > 0 && t.names[0] == DefaultClass {
		return 1
	}
	return 0
}

// ResolveToken turns the class field of an annotation line into a class
// name. Numeric tokens are shifted by Offset; ids past the end extend the
// table with class_<n> placeholders. This mutates the table and grew reports
// it, so the caller must persist the label file. Other tokens are literal
// names with underscores standing for spaces.
func (t *Table) ResolveToken(token string) (name string, grew bool) {
	id, ok := parseID(token)
	if !ok {
		if n, err := strconv.Atoi(token); err == nil && n > MaxClassID {
			log.Printf("classes: id %s is above %d, keeping it as a literal class name", token, MaxClassID)
		}
		return literalName(token), false
	}
	id += t.Offset()
	for len(t.names) <= id {
		t.appendName(t.placeholder(len(t.names)))
		grew = true
	}
	return t.names[id], grew
}

// Resolve is the read-only form of ResolveToken. Numeric ids past the end
// return ErrUnknownClass instead of growing the table.
func (t *Table) Resolve(token string) (string, error) {
	id, ok := parseID(token)
	if !ok {
		return literalName(token), nil
	}
	if name, ok := t.Name(id + t.Offset()); ok {
		return name, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownClass, token)
}

// IDFor returns the id of name, appending it when it is new.
func (t *Table) IDFor(name string) (id int, added bool) {
	if id, ok := t.index[name]; ok {
		return id, false
	}
	return t.appendName(name), true
}

// SerializedID is the id written to annotation files for name: IDFor minus
// Offset. It reverses ResolveToken for every id that was valid at load time.
// With the offset active, DefaultClass itself (id 0) is also written as 0 and
// reads back as the class at id 1; files written by earlier versions of the
// format depend on that.
func (t *Table) SerializedID(name string) (id int, added bool) {
	id, added = t.IDFor(name)
	if off := t.Offset(); id >= off {
		id -= off
	}
	return id, added
}

// Add registers a user-entered class name. Blank names are ignored.
func (t *Table) Add(name string) (id int, added bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return -1, false
	}
	return t.IDFor(name)
}

func (t *Table) appendName(name string) int {
	if id, ok := t.index[name]; ok {
		return id
	}
	t.names = append(t.names, name)
	t.index[name] = len(t.names) - 1
	return len(t.names) - 1
}

// placeholder names the slot at id. Names already taken get a numeric suffix
// so ids stay aligned with the table length.
func (t *Table) placeholder(id int) string {
	name := fmt.Sprintf("class_%d", id)
	for k := 2; t.Contains(name); k++ {
		name = fmt.Sprintf("class_%d_%d", id, k)
	}
	return name
}

func parseID(token string) (int, bool) {
	id, err := strconv.Atoi(token)
	if err != nil || id < 0 || id > MaxClassID {
		return 0, false
	}
	return id, true
}

func literalName(token string) string {
	return strings.ReplaceAll(token, "_", " ")
}
