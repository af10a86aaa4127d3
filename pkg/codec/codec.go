// Package codec reads and writes per-image annotation files: one box per
// line as "<id> <cx> <cy> <w> <h>" with normalized coordinates.
package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/menta2k/image-annotator/pkg/classes"
	"github.com/menta2k/image-annotator/pkg/types"
)

// AnnotationPath returns the annotation file for an image: same path with
// the extension replaced by .txt.
func AnnotationPath(imagePath string) string {
	return strings.TrimSuffix(imagePath, filepath.Ext(imagePath)) + ".txt"
}

// Decode parses annotation lines from r. Malformed lines are dropped one by
// one, whatever their length. Class tokens go through table.ResolveToken and
// any class not yet in the table is registered; changed reports whether the
// table grew.
func Decode(r io.Reader, table *classes.Table) (boxes []types.BoundingBox, changed bool, err error) {
	br := bufio.NewReader(r)
	for {
		line, rerr := br.ReadString('\n')
		if line != "" {
			b, grew, ok := decodeLine(line, table)
			changed = changed || grew
			if ok {
				boxes = append(boxes, b)
			}
		}
		if rerr == io.EOF {
			return boxes, changed, nil
		}
		if rerr != nil {
			return boxes, changed, rerr
		}
	}
}

func decodeLine(line string, table *classes.Table) (types.BoundingBox, bool, bool) {
	parts := strings.Fields(line)
	if len(parts) < 5 {
		return types.BoundingBox{}, false, false
	}

	name, grew := table.ResolveToken(parts[0])

	var vals [4]float64
	for i := range vals {
		v, err := strconv.ParseFloat(parts[i+1], 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return types.BoundingBox{}, grew, false
		}
		vals[i] = v
	}

	if _, added := table.IDFor(name); added {
		grew = true
	}
	return types.BoundingBox{ClassName: name, Cx: vals[0], Cy: vals[1], W: vals[2], H: vals[3]}, grew, true
}

// Read loads the annotation file at path. A missing file means no boxes.
func Read(path string, table *classes.Table) ([]types.BoundingBox, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to open annotation file: %w", err)
	}
	defer f.Close()

	boxes, changed, err := Decode(f, table)
	if err != nil {
		return boxes, changed, fmt.Errorf("failed to read annotation file: %w", err)
	}
	return boxes, changed, nil
}

// FormatLine renders one annotation line without the trailing newline.
func FormatLine(id int, b types.BoundingBox) string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", id, b.Cx, b.Cy, b.W, b.H)
}

// Encode writes boxes in collection order. Classes missing from the table
// are appended to it; changed reports that so the label file can be saved.
func Encode(w io.Writer, boxes []types.BoundingBox, table *classes.Table) (changed bool, err error) {
	bw := bufio.NewWriter(w)
	for _, b := range boxes {
		id, added := table.SerializedID(b.ClassName)
		changed = changed || added
		if _, err := fmt.Fprintln(bw, FormatLine(id, b)); err != nil {
			return changed, err
		}
	}
	return changed, bw.Flush()
}

// Write truncates or creates the annotation file at path and encodes boxes
// into it.
func Write(path string, boxes []types.BoundingBox, table *classes.Table) (bool, error) {
	var buf bytes.Buffer
	changed, err := Encode(&buf, boxes, table)
	if err != nil {
		return changed, err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return changed, fmt.Errorf("failed to write annotation file: %w", err)
	}
	return changed, nil
}
