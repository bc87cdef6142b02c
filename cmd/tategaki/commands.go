package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dgallion1/tategaki/internal/aozora"
	"github.com/dgallion1/tategaki/internal/content"
	"github.com/dgallion1/tategaki/internal/exportfile"
	"github.com/dgallion1/tategaki/internal/pagination"
	"github.com/dgallion1/tategaki/internal/parser"
	"github.com/dgallion1/tategaki/internal/store"
	"github.com/dgallion1/tategaki/internal/surface"
)

// load reads any supported file into a record.
func load(path string) (store.Document, *content.Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return store.Document{}, nil, err
	}
	doc, err := parser.Record(data, path, parser.Options{FallbackPdftotext: true})
	if err != nil {
		return store.Document{}, nil, err
	}
	tree, err := decode(doc.Content)
	if err != nil {
		return store.Document{}, nil, err
	}
	return doc, tree, nil
}

func decode(blob string) (*content.Tree, error) {
	if blob == "" {
		return content.NewDocument(), nil
	}
	return content.DefaultRegistry().Deserialize([]byte(blob))
}

// CountCmd prints the status-bar counts of a file.
type CountCmd struct {
	Path string `arg:"" help:"File to count" type:"existingfile"`
	JSON bool   `help:"Print JSON"`
}

func (c *CountCmd) Run(e *env) error {
	_, tree, err := load(c.Path)
	if err != nil {
		return err
	}
	st := content.Measure(tree)
	if c.JSON {
		return json.NewEncoder(e.out).Encode(st)
	}
	fmt.Fprintf(e.out, "characters: %d\nlines: %d\n", st.Characters, st.Lines)
	return nil
}

// PaginateCmd lays a file out and lists its page breaks.
type PaginateCmd struct {
	Path            string  `arg:"" help:"File to paginate" type:"existingfile"`
	Width           float64 `help:"Surface width in pixels" default:"1000"`
	Height          float64 `help:"Surface height in pixels" default:"400"`
	FontSize        float64 `help:"Font size in pixels" default:"16"`
	LineHeight      float64 `help:"Line height as a multiple of the font size" default:"1.75"`
	PageWidth       float64 `help:"Page width at the reference height" default:"800"`
	ReferenceHeight float64 `help:"Height the page width is measured at" default:"400"`
	Font            string  `help:"TrueType or OpenType font for half-width glyphs" type:"existingfile"`
	JSON            bool    `help:"Print the full result as JSON"`
}

func (c *PaginateCmd) Run(e *env) error {
	_, tree, err := load(c.Path)
	if err != nil {
		return err
	}
	var m surface.Measurer = surface.FixedMeasurer{}
	if c.Font != "" {
		fm, err := surface.NewFontMeasurer(c.Font)
		if err != nil {
			return err
		}
		m = fm
	}
	vp := surface.Viewport{Width: c.Width, Height: c.Height, FontSize: c.FontSize, LineHeight: c.LineHeight}
	layout := surface.Lay(tree, vp, m)
	res := pagination.NewEngine(c.PageWidth, c.ReferenceHeight, e.log).Run(tree, layout, pagination.NewMarkerSet())
	if c.JSON {
		enc := json.NewEncoder(e.out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if res.Deferred {
		return fmt.Errorf("surface height must be positive")
	}
	fmt.Fprintf(e.out, "pages: %d\ncolumns: %d\n", res.PageCount, layout.Columns())
	for _, in := range pagination.Indicators(res.Markers) {
		fmt.Fprintf(e.out, "page %d at %.1f\n", in.PageNumber, in.Position)
	}
	return nil
}

// output writes to path, or to the default writer when path is empty or
// "-".
func output(path string, def io.Writer, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(def)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeDocument(w io.Writer, doc store.Document, format string) error {
	switch format {
	case "json", "xz":
		return exportfile.Write(w, exportfile.FromDocument(doc), format == "xz")
	case "txt":
		tree, err := decode(doc.Content)
		if err != nil {
			return err
		}
		return aozora.Write(w, tree)
	}
	return fmt.Errorf("unsupported format %q", format)
}

// ConvertCmd converts a file without touching the store.
type ConvertCmd struct {
	Path   string `arg:"" help:"File to convert" type:"existingfile"`
	Output string `short:"o" help:"Output file (default stdout)" type:"path"`
	Format string `short:"f" help:"Output format" enum:"json,xz,txt" default:"json"`
	Title  string `help:"Title to store in the export file"`
}

func (c *ConvertCmd) Run(e *env) error {
	doc, _, err := load(c.Path)
	if err != nil {
		return err
	}
	if c.Title != "" {
		doc.Title = c.Title
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	return output(c.Output, e.out, func(w io.Writer) error { return writeDocument(w, doc, c.Format) })
}

// StoreFlags locate the document store.
type StoreFlags struct {
	DB string `help:"SQLite database path" env:"DATABASE_PATH" default:"tategaki.db" type:"path"`
}

func (f StoreFlags) open(ctx context.Context) (*store.Store, error) {
	return store.Open(ctx, f.DB)
}

// ImportCmd stores a file as a new document and prints its id.
type ImportCmd struct {
	Store StoreFlags `embed:""`
	Path  string     `arg:"" help:"File to import" type:"existingfile"`
	Title string     `help:"Override the document title"`
}

func (c *ImportCmd) Run(e *env) error {
	ctx := context.Background()
	doc, _, err := load(c.Path)
	if err != nil {
		return err
	}
	if c.Title != "" {
		doc.Title = c.Title
	}
	st, err := c.Store.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	doc, err = st.Import(ctx, doc)
	if err != nil {
		return err
	}
	e.log.Debug("document imported", "doc_id", doc.ID, "path", c.Path)
	fmt.Fprintln(e.out, doc.ID)
	return nil
}

// ExportCmd writes a stored document.
type ExportCmd struct {
	Store  StoreFlags `embed:""`
	ID     string     `arg:"" help:"Document id"`
	Output string     `short:"o" help:"Output file (default stdout)" type:"path"`
	Format string     `short:"f" help:"Output format" enum:"json,xz,txt" default:"json"`
}

func (c *ExportCmd) Run(e *env) error {
	ctx := context.Background()
	st, err := c.Store.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	doc, err := st.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	return output(c.Output, e.out, func(w io.Writer) error { return writeDocument(w, doc, c.Format) })
}

// ListCmd prints stored documents, most recently updated first.
type ListCmd struct {
	Store StoreFlags `embed:""`
}

func (c *ListCmd) Run(e *env) error {
	ctx := context.Background()
	st, err := c.Store.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()
	docs, err := st.List(ctx)
	if err != nil {
		return err
	}
	reg := content.DefaultRegistry()
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tCHARACTERS\tUPDATED")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.ID, d.Title, content.CountCharacters(reg, []byte(d.Content)), d.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
