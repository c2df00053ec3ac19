// Package grid_world holds the race track model: the immutable cell grid, the
// acceleration actions available to the vehicle, the reward field derived from the
// finish line, and renderers for looking at all of it.
package grid_world

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

const (
	// Track cell types
	WALL   = '#'
	OPEN   = '.'
	START  = 'S'
	FINISH = 'F'

	// Acceleration actions in the x and y direction.
	MAX_ACCELERATION  = 1
	MIN_ACCELERATION  = -1
	NUM_ACCELERATIONS = MAX_ACCELERATION - MIN_ACCELERATION + 1
	NUM_ACTIONS       = NUM_ACCELERATIONS * NUM_ACCELERATIONS
)

// The classical track and a smaller debug track for development.
// The first row is y=0, the first column x=0.
var (
	DebugTrack []string = []string{
		"######",
		"#....F",
		"#....F",
		"#..###",
		"#..###",
		"#..###",
		"#..###",
		"#SS###",
	}

	FullTrack []string = []string{
		"##################",
		"####.............F",
		"###..............F",
		"###..............F",
		"##...............F",
		"#................F",
		"#................F",
		"#..........#######",
		"#.........########",
		"#.........########",
		"#.........########",
		"#.........########",
		"#.........########",
		"#.........########",
		"#.........########",
		"##........########",
		"##........########",
		"##........########",
		"##........########",
		"##........########",
		"##........########",
		"##........########",
		"##........########",
		"###.......########",
		"###.......########",
		"###.......########",
		"###.......########",
		"###.......########",
		"###.......########",
		"###.......########",
		"####......########",
		"####......########",
		"####SSSSSS########",
	}
)

// Load-time errors. Parse wraps these with the offending line.
var (
	ErrBadDimensions = errors.New("track dimensions must be two positive integers 'W,H'")
	ErrMissingRows   = errors.New("track has fewer rows than its declared height")
	ErrShortRow      = errors.New("track row is shorter than its declared width")
	ErrUnknownCell   = errors.New("unknown track cell")
	ErrNoStart       = errors.New("track has no start cell")
	ErrNoFinish      = errors.New("track has no finish cell")
)

// Point is an x/y grid coordinate; x is the column and y the row.
type Point struct {
	X, Y int
}

// Action consists of a velocity increment/decrement in the horizontal and vertical direction.
// In this problem, three accelerations (+1, -1, 0) per axis yield 9 actions per step.
type Action struct {
	Dvx, Dvy int
}

// Index returns the [dvx+1][dvy+1] offsets of the action, as used by tables indexed per action.
func (a Action) Index() (int, int) {
	return a.Dvx - MIN_ACCELERATION, a.Dvy - MIN_ACCELERATION
}

// Actions returns all actions in enumeration order: dvx outer, dvy inner, both ascending.
// Tie-breaking in the policies depends on this order.
func Actions() []Action {
	actions := make([]Action, 0, NUM_ACTIONS)
	for dvx := MIN_ACCELERATION; dvx <= MAX_ACCELERATION; dvx++ {
		for dvy := MIN_ACCELERATION; dvy <= MAX_ACCELERATION; dvy++ {
			actions = append(actions, Action{Dvx: dvx, Dvy: dvy})
		}
	}
	return actions
}

// Grid is the read-only track: a W x H matrix of cell types plus its start and finish sets.
// Cells are indexed [x][y].
type Grid struct {
	cells    [][]rune
	width    int
	height   int
	starts   []Point
	finishes []Point
}

// NewGrid builds a grid from track rows, one string per row, top row first.
// All rows must have the same width.
func NewGrid(rows []string) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrBadDimensions
	}
	width := len(rows[0])
	for y, row := range rows {
		if len(row) < width {
			return nil, fmt.Errorf("row %d: %w", y, ErrShortRow)
		}
	}
	return buildGrid(rows, width, len(rows))
}

func buildGrid(rows []string, width, height int) (*Grid, error) {
	g := &Grid{
		cells:  make([][]rune, width),
		width:  width,
		height: height,
	}
	for x := range g.cells {
		g.cells[x] = make([]rune, height)
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			cell := rune(rows[y][x])
			switch cell {
			case START:
				g.starts = append(g.starts, Point{x, y})
			case FINISH:
				g.finishes = append(g.finishes, Point{x, y})
			case WALL, OPEN:
			default:
				return nil, fmt.Errorf("row %d col %d %q: %w", y, x, cell, ErrUnknownCell)
			}
			g.cells[x][y] = cell
		}
	}

	if len(g.starts) == 0 {
		return nil, ErrNoStart
	}
	if len(g.finishes) == 0 {
		return nil, ErrNoFinish
	}
	return g, nil
}

// Parse reads a track definition: a 'W,H' header line followed by H rows of at least
// W characters from the alphabet '#', '.', 'S', 'F'. Characters past column W are ignored.
func Parse(r io.Reader) (*Grid, error) {
	scanner := bufio.NewScanner(r)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("read header: %w", err)
		}
		return nil, ErrBadDimensions
	}

	width, height, err := parseDimensions(scanner.Text())
	if err != nil {
		return nil, err
	}

	// The header is untrusted; rows grow as they are read.
	var rows []string
	for len(rows) < height && scanner.Scan() {
		row := strings.TrimRight(scanner.Text(), "\r")
		if len(row) < width {
			return nil, fmt.Errorf("row %d has %d of %d cells: %w", len(rows), len(row), width, ErrShortRow)
		}
		rows = append(rows, row)
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) < height {
		return nil, fmt.Errorf("got %d of %d rows: %w", len(rows), height, ErrMissingRows)
	}

	return buildGrid(rows, width, height)
}

func parseDimensions(header string) (width, height int, err error) {
	fields := strings.Split(strings.TrimSpace(header), ",")
	if len(fields) != 2 {
		err = fmt.Errorf("header %q: %w", header, ErrBadDimensions)
		return
	}
	if width, err = strconv.Atoi(strings.TrimSpace(fields[0])); err != nil || width <= 0 {
		err = fmt.Errorf("header %q: %w", header, ErrBadDimensions)
		return
	}
	if height, err = strconv.Atoi(strings.TrimSpace(fields[1])); err != nil || height <= 0 {
		err = fmt.Errorf("header %q: %w", header, ErrBadDimensions)
		return
	}
	return
}

// Load opens and parses a track file.
func Load(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load track: %w", err)
	}
	defer f.Close()

	g, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("load track %s: %w", path, err)
	}
	return g, nil
}

func (g *Grid) Width() int  { return g.width }
func (g *Grid) Height() int { return g.height }

// InBounds reports whether x/y lies on the grid.
func (g *Grid) InBounds(x, y int) bool {
	return x >= 0 && x < g.width && y >= 0 && y < g.height
}

// At returns the cell type at x/y. The caller must check bounds.
func (g *Grid) At(x, y int) rune {
	return g.cells[x][y]
}

// Starts returns a copy of the start cells in row-major order.
func (g *Grid) Starts() []Point {
	return append([]Point(nil), g.starts...)
}

// Finishes returns a copy of the finish cells in row-major order.
func (g *Grid) Finishes() []Point {
	return append([]Point(nil), g.finishes...)
}

// RandomStart selects one of the start cells uniformly at random.
func (g *Grid) RandomStart(rng *rand.Rand) Point {
	return g.starts[rng.Intn(len(g.starts))]
}

// OpenCells returns every OPEN cell in row-major order (y outer, x inner).
func (g *Grid) OpenCells() (open []Point) {
	g.Visit(func(x, y int, cell rune) {
		if cell == OPEN {
			open = append(open, Point{x, y})
		}
	})
	return
}

// Visit calls fn for every cell in row-major order.
func (g *Grid) Visit(fn func(x, y int, cell rune)) {
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			fn(x, y, g.cells[x][y])
		}
	}
}

// Rows returns the track as strings, top row first; the inverse of NewGrid.
func (g *Grid) Rows() []string {
	rows := make([]string, g.height)
	for y := range rows {
		var sb strings.Builder
		for x := 0; x < g.width; x++ {
			sb.WriteRune(g.cells[x][y])
		}
		rows[y] = sb.String()
	}
	return rows
}
