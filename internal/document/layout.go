package document

import (
	"strings"
	"unicode"
)

// GridOptions tunes table detection over layout text. Zero fields take
// defaults.
type GridOptions struct {
	MinGutter int // spaces that separate two cells, default 2
	MinCols   int // default 3
	MinRows   int // tabular lines needed for a table, default 2
	MaxGap    int // non-tabular lines tolerated inside a table, default 2; negative for none
}

func (o GridOptions) withDefaults() GridOptions {
	if o.MinGutter <= 0 {
		o.MinGutter = 2
	}
	if o.MinCols <= 0 {
		o.MinCols = 3
	}
	if o.MinRows <= 0 {
		o.MinRows = 2
	}
	if o.MaxGap < 0 {
		o.MaxGap = 0
	} else if o.MaxGap == 0 {
		o.MaxGap = 2
	}
	return o
}

// segment is a run of text on one line, in rune offsets (end exclusive).
type segment struct {
	start, end int
	text       string
}

type span struct{ start, end int }

// FromText builds a document from layout text (pdftotext -layout output or
// a plain text file). Pages are separated by form feeds.
func FromText(source, format, text string, opts GridOptions) *Document {
	opts = opts.withDefaults()
	text = strings.ReplaceAll(text, "\r\n", "\n")
	raw := strings.Split(text, "\f")
	if len(raw) > 1 && strings.TrimSpace(raw[len(raw)-1]) == "" {
		raw = raw[:len(raw)-1]
	}

	doc := &Document{Source: source, Format: format}
	for i, pageText := range raw {
		lines := strings.Split(strings.TrimPrefix(pageText, "\n"), "\n")
		for j, l := range lines {
			lines[j] = strings.TrimRightFunc(l, unicode.IsSpace)
		}
		for len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		doc.Pages = append(doc.Pages, Page{
			Number: i + 1,
			Lines:  lines,
			Blocks: detectBlocks(lines, opts),
		})
	}
	return doc
}

// LayoutRunes expands tabs and maps every Unicode space to ' ' so column
// offsets line up.
func LayoutRunes(line string) []rune {
	out := make([]rune, 0, len(line))
	for _, r := range line {
		switch {
		case r == '\t':
			out = append(out, ' ')
			for len(out)%8 != 0 {
				out = append(out, ' ')
			}
		case unicode.IsSpace(r):
			out = append(out, ' ')
		default:
			out = append(out, r)
		}
	}
	return out
}

// splitSegments cuts a line at every run of at least minGutter spaces.
func splitSegments(line []rune, minGutter int) []segment {
	var segs []segment
	n := len(line)
	i := 0
	for i < n {
		for i < n && line[i] == ' ' {
			i++
		}
		if i >= n {
			break
		}
		start, end := i, i
		for i < n {
			if line[i] != ' ' {
				i++
				end = i
				continue
			}
			j := i
			for j < n && line[j] == ' ' {
				j++
			}
			if j-i >= minGutter || j >= n {
				break
			}
			i = j
		}
		segs = append(segs, segment{start: start, end: end, text: string(line[start:end])})
		i = end
	}
	return segs
}

func detectBlocks(lines []string, opts GridOptions) []Block {
	segs := make([][]segment, len(lines))
	wide := make([]bool, len(lines))
	for i, l := range lines {
		segs[i] = splitSegments(LayoutRunes(l), opts.MinGutter)
		wide[i] = len(segs[i]) >= opts.MinCols
	}

	var blocks []Block
	var pending []string
	flush := func() {
		if len(pending) > 0 {
			blocks = append(blocks, Block{Kind: BlockLines, Lines: pending})
			pending = nil
		}
	}

	i := 0
	for i < len(lines) {
		if !wide[i] {
			pending = append(pending, lines[i])
			i++
			continue
		}
		last, streak := i, 0
		for j := i + 1; j < len(lines); j++ {
			if wide[j] {
				last, streak = j, 0
				continue
			}
			if strings.TrimSpace(lines[j]) == "" {
				continue
			}
			streak++
			if streak > opts.MaxGap {
				break
			}
		}

		if grid, ok := buildGrid(segs[i:last+1], wide[i:last+1], opts); ok {
			flush()
			blocks = append(blocks, Block{Kind: BlockTable, Rows: grid, Lines: lines[i : last+1]})
			i = last + 1
			continue
		}
		pending = append(pending, lines[i])
		i++
	}
	flush()
	return blocks
}

// buildGrid derives column spans from the occupancy of the wide lines and
// assigns every segment of every line in the run to the column it overlaps
// most.
func buildGrid(segs [][]segment, wide []bool, opts GridOptions) ([][]string, bool) {
	wideCount, width := 0, 0
	for i, ss := range segs {
		if !wide[i] {
			continue
		}
		wideCount++
		if n := len(ss); n > 0 && ss[n-1].end > width {
			width = ss[n-1].end
		}
	}
	if wideCount < opts.MinRows {
		return nil, false
	}

	occ := make([]int, width)
	for i, ss := range segs {
		if !wide[i] {
			continue
		}
		for _, s := range ss {
			for p := s.start; p < s.end; p++ {
				occ[p]++
			}
		}
	}
	minOcc := 1 + wideCount/10
	cols := columnSpans(occ, minOcc, opts.MinGutter)
	if len(cols) < opts.MinCols {
		return nil, false
	}

	var grid [][]string
	for _, ss := range segs {
		if len(ss) == 0 {
			continue
		}
		row := make([]string, len(cols))
		for _, s := range ss {
			c := bestColumn(s, cols)
			if row[c] != "" {
				row[c] += " " + s.text
			} else {
				row[c] = s.text
			}
		}
		grid = append(grid, row)
	}
	return grid, true
}

func columnSpans(occ []int, minOcc, minGutter int) []span {
	var cols []span
	inCol := false
	for p, c := range occ {
		filled := c >= minOcc
		switch {
		case filled && !inCol:
			if n := len(cols); n > 0 && p-cols[n-1].end < minGutter {
				// gap too narrow to be a gutter: extend the previous column
				cols[n-1].end = p + 1
			} else {
				cols = append(cols, span{start: p, end: p + 1})
			}
			inCol = true
		case filled:
			cols[len(cols)-1].end = p + 1
		default:
			inCol = false
		}
	}
	return cols
}

// bestColumn picks the column with the largest overlap, else the nearest.
func bestColumn(s segment, cols []span) int {
	best, bestOverlap := -1, 0
	for i, c := range cols {
		if o := min(s.end, c.end) - max(s.start, c.start); o > bestOverlap {
			best, bestOverlap = i, o
		}
	}
	if best >= 0 {
		return best
	}
	best, bestDist := 0, -1
	for i, c := range cols {
		d := 0
		if s.end <= c.start {
			d = c.start - s.end
		} else {
			d = s.start - c.end
		}
		if bestDist < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
