// Command tategaki works with vertical-writing documents offline: it
// counts, paginates and converts files, and moves documents in and out of
// the document store.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
)

// CLI defines the command-line interface for tategaki.
var CLI struct {
	Verbose bool `short:"v" help:"Log debug output to stderr"`

	Count    CountCmd    `cmd:"" help:"Count characters and lines of a file"`
	Paginate PaginateCmd `cmd:"" help:"Report where pages break in a file"`
	Convert  ConvertCmd  `cmd:"" help:"Convert a file to an export file or Aozora style text"`
	Import   ImportCmd   `cmd:"" help:"Import a file into the document store"`
	Export   ExportCmd   `cmd:"" help:"Export a stored document"`
	List     ListCmd     `cmd:"" help:"List stored documents"`
}

// env is bound into every command's Run.
type env struct {
	out io.Writer
	log *slog.Logger
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("tategaki"),
		kong.Description("Vertical Japanese document tools"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	level := slog.LevelWarn
	if CLI.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	err := ctx.Run(&env{out: os.Stdout, log: log})
	ctx.FatalIfErrorf(err)
}
