// Package loader turns a dataset file on disk into the in-memory
// []*shape.Shape slice HostController.LoadDataset expects, plus the
// dataspace MBR that AssignPartitions needs before any shape can be
// assigned. It supports the two source formats the config layer's
// dataset.FileType enumerates: comma-separated coordinate rows and
// tab-separated WKT.
package loader

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/arxgeo/geodist/internal/dataset"
	"github.com/arxgeo/geodist/internal/dberr"
	"github.com/arxgeo/geodist/internal/shape"
)

// geometryType maps a dataset.Type to the shape.GeometryType tag New
// needs. The two enumerations share the same member order by
// convention, but a dataset file loader is exactly the kind of code
// that must not break silently if one of them is ever reordered.
func geometryType(t dataset.Type) (shape.GeometryType, error) {
	switch t {
	case dataset.TypePoint:
		return shape.TypePoint, nil
	case dataset.TypeLineString:
		return shape.TypeLineString, nil
	case dataset.TypePolygon:
		return shape.TypePolygon, nil
	case dataset.TypeBox:
		return shape.TypeBox, nil
	default:
		return 0, dberr.New(dberr.CodeConfig, fmt.Sprintf("loader: unknown data type %d", t))
	}
}

// Load reads path according to ft and typ, returning every shape it
// contains and the MBR enclosing all of them. An empty file yields a
// zero-value MBR and a nil slice, not an error.
func Load(path string, typ dataset.Type, ft dataset.FileType) ([]*shape.Shape, shape.MBR, error) {
	switch ft {
	case dataset.FileTypeCSV:
		return loadCSV(path, typ)
	case dataset.FileTypeWKT:
		return loadWKT(path, typ)
	default:
		return nil, shape.MBR{}, dberr.New(dberr.CodeConfig, fmt.Sprintf("loader: unsupported file type %d", ft))
	}
}

// loadCSV reads one shape per line: a leading record-id column followed
// by one "x y" space-separated coordinate pair per remaining column.
// The id column's text is not parsed as the shape's RecID — only
// uniqueness within the dataset matters downstream, and the row's
// position already guarantees that — but the column must still be
// present and is skipped over.
func loadCSV(path string, typ dataset.Type) ([]*shape.Shape, shape.MBR, error) {
	gtype, err := geometryType(typ)
	if err != nil {
		return nil, shape.MBR{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, shape.MBR{}, dberr.Wrap(dberr.CodeFilesystem, "loader: open "+path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	var shapes []*shape.Shape
	var dataspace shape.MBR
	var have bool
	var recID int64

	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, shape.MBR{}, dberr.Wrap(dberr.CodeFilesystem, "loader: read "+path, err)
		}
		if len(fields) < 2 {
			return nil, shape.MBR{}, dberr.New(dberr.CodeFilesystem,
				fmt.Sprintf("loader: %s line %d: need an id column plus at least one coordinate pair", path, recID+1))
		}

		coords := make([]shape.Point, 0, len(fields)-1)
		for _, field := range fields[1:] {
			p, err := parseCoordPair(field)
			if err != nil {
				return nil, shape.MBR{}, dberr.Wrap(dberr.CodeFilesystem,
					fmt.Sprintf("loader: %s line %d", path, recID+1), err)
			}
			coords = append(coords, p)
		}

		s, err := shape.New(recID, gtype, coords)
		if err != nil {
			return nil, shape.MBR{}, dberr.Wrap(dberr.CodeFilesystem, "loader: "+path, err)
		}
		shapes = append(shapes, s)
		dataspace = growMBR(dataspace, have, s.MBR)
		have = true
		recID++
	}
	return shapes, dataspace, nil
}

func parseCoordPair(field string) (shape.Point, error) {
	parts := strings.Fields(field)
	if len(parts) != 2 {
		return shape.Point{}, fmt.Errorf("coordinate pair %q must be \"x y\"", field)
	}
	x, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return shape.Point{}, fmt.Errorf("coordinate pair %q: %w", field, err)
	}
	y, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return shape.Point{}, fmt.Errorf("coordinate pair %q: %w", field, err)
	}
	return shape.Point{X: x, Y: y}, nil
}

// loadWKT reads one shape per line, taking only the first
// tab-separated column as the WKT geometry literal; any trailing
// columns (attributes a GIS export might carry) are ignored. A line
// whose WKT tag doesn't match typ is skipped rather than failing the
// whole load, matching a tolerant bulk-import posture.
func loadWKT(path string, typ dataset.Type) ([]*shape.Shape, shape.MBR, error) {
	gtype, err := geometryType(typ)
	if err != nil {
		return nil, shape.MBR{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, shape.MBR{}, dberr.Wrap(dberr.CodeFilesystem, "loader: open "+path, err)
	}
	defer f.Close()

	var shapes []*shape.Shape
	var dataspace shape.MBR
	var have bool
	var recID int64

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		wkt := line
		if i := strings.IndexByte(line, '\t'); i >= 0 {
			wkt = line[:i]
		}

		coords, wktType, err := parseWKT(wkt)
		if err != nil {
			return nil, shape.MBR{}, dberr.Wrap(dberr.CodeFilesystem,
				fmt.Sprintf("loader: %s line %d", path, recID+1), err)
		}
		if wktType != gtype {
			recID++
			continue
		}

		s, err := shape.New(recID, gtype, coords)
		if err != nil {
			return nil, shape.MBR{}, dberr.Wrap(dberr.CodeFilesystem, "loader: "+path, err)
		}
		shapes = append(shapes, s)
		dataspace = growMBR(dataspace, have, s.MBR)
		have = true
		recID++
	}
	if err := scanner.Err(); err != nil {
		return nil, shape.MBR{}, dberr.Wrap(dberr.CodeFilesystem, "loader: read "+path, err)
	}
	return shapes, dataspace, nil
}

// parseWKT handles the four tags the engine's geometry model covers:
// POINT, LINESTRING, POLYGON (outer ring only; a polygon with inner
// rings fails here, since the ring-separating parenthesis leaves a
// malformed coordinate), and BOX, a non-standard extension written as
// "BOX(minx miny, maxx maxy)" for the two corner points.
func parseWKT(s string) ([]shape.Point, shape.GeometryType, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open < 0 || !strings.HasSuffix(s, ")") {
		return nil, 0, fmt.Errorf("malformed WKT %q", s)
	}
	tag := strings.ToUpper(strings.TrimSpace(s[:open]))
	body := s[open+1 : len(s)-1]
	body = strings.Trim(body, "()")

	var gtype shape.GeometryType
	switch tag {
	case "POINT":
		gtype = shape.TypePoint
	case "LINESTRING":
		gtype = shape.TypeLineString
	case "POLYGON":
		gtype = shape.TypePolygon
	case "BOX":
		gtype = shape.TypeBox
	default:
		return nil, 0, fmt.Errorf("unsupported WKT tag %q", tag)
	}

	var coords []shape.Point
	for _, pair := range strings.Split(body, ",") {
		fields := strings.Fields(strings.TrimSpace(pair))
		if len(fields) != 2 {
			return nil, 0, fmt.Errorf("malformed WKT coordinate %q in %q", pair, s)
		}
		x, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, 0, fmt.Errorf("malformed WKT coordinate %q: %w", pair, err)
		}
		y, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, 0, fmt.Errorf("malformed WKT coordinate %q: %w", pair, err)
		}
		coords = append(coords, shape.Point{X: x, Y: y})
	}
	return coords, gtype, nil
}

func growMBR(acc shape.MBR, have bool, m shape.MBR) shape.MBR {
	if !have {
		return m
	}
	return acc.Union(m)
}
