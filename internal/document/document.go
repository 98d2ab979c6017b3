// Package document loads statement files into an immutable page/block
// model: layout text for PDFs and plain text, cell grids for spreadsheets.
package document

import "strings"

// BlockKind says how a block's content was recognized.
type BlockKind int

const (
	// BlockLines is free text with no detected column structure.
	BlockLines BlockKind = iota
	// BlockTable is a grid of cells, row/column indexed.
	BlockTable
)

func (k BlockKind) String() string {
	if k == BlockTable {
		return "table"
	}
	return "lines"
}

// Block is a contiguous region of a page. Every block carries the raw
// lines it was built from; table blocks also carry their cell grid.
type Block struct {
	Kind  BlockKind
	Rows  [][]string
	Lines []string
}

// Page is one page (or spreadsheet sheet) in reading order.
type Page struct {
	Number int
	Name   string
	Lines  []string
	Blocks []Block
}

// Tables returns the page's table blocks.
func (p Page) Tables() []Block {
	var out []Block
	for _, b := range p.Blocks {
		if b.Kind == BlockTable {
			out = append(out, b)
		}
	}
	return out
}

// Document is a loaded statement. Treat it as read-only; Clone before
// modifying.
type Document struct {
	Source string
	Format string
	Pages  []Page
}

// Text joins every page's lines, pages separated by form feeds.
func (d *Document) Text() string {
	pages := make([]string, len(d.Pages))
	for i, p := range d.Pages {
		pages[i] = strings.Join(p.Lines, "\n")
	}
	return strings.Join(pages, "\n\f")
}

// LineCount is the number of lines over all pages.
func (d *Document) LineCount() int {
	n := 0
	for _, p := range d.Pages {
		n += len(p.Lines)
	}
	return n
}

// Clone deep-copies the document.
func (d *Document) Clone() *Document {
	out := &Document{Source: d.Source, Format: d.Format, Pages: make([]Page, len(d.Pages))}
	for i, p := range d.Pages {
		np := Page{Number: p.Number, Name: p.Name, Lines: append([]string(nil), p.Lines...)}
		np.Blocks = make([]Block, len(p.Blocks))
		for j, b := range p.Blocks {
			nb := Block{Kind: b.Kind, Lines: append([]string(nil), b.Lines...)}
			if b.Rows != nil {
				nb.Rows = make([][]string, len(b.Rows))
				for k, r := range b.Rows {
					nb.Rows[k] = append([]string(nil), r...)
				}
			}
			np.Blocks[j] = nb
		}
		out.Pages[i] = np
	}
	return out
}
