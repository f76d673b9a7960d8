package process

import (
	"strings"

	cli "github.com/urfave/cli/v3"

	"chopper/config"
)

// Flags returns command line flags of extract subcommand.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "keep", Aliases: []string{"k"}, Usage: "keep nodes selected by `XPATH` (repeatable)"},
		&cli.StringSliceFlag{Name: "discard", Aliases: []string{"x"}, Usage: "remove nodes selected by `XPATH` unless explicitly kept (repeatable)"},
		&cli.StringFlag{Name: "css", Usage: "filter stylesheet from `FILE` against every extracted page"},
		&cli.StringFlag{Name: "base-url", Aliases: []string{"b"}, Usage: "resolve relative links against `URL`"},
		&cli.BoolFlag{Name: "no-rewrite", Usage: "leave links as they are even when base URL is known"},
		&cli.BoolFlag{Name: "page-styles", Usage: "filter <style> elements of the page together with stylesheet"},
		&cli.StringFlag{Name: "to", Value: config.OutputFmtHtml.String(),
			Usage: "output `TYPE` (supported types: " + strings.Join(config.OutputFmtNames(), ", ") + ")"},
		&cli.BoolFlag{Name: "nodirs", Aliases: []string{"nd"}, Usage: "when producing output do not keep input directory structure"},
		&cli.BoolFlag{Name: "overwrite", Aliases: []string{"ow"}, Usage: "continue even if destination exists, overwrite files"},
		&cli.StringFlag{Name: "zip", Usage: "pack all results into archive `NAME` in destination directory"},
		&cli.StringFlag{Name: "force-zip-cp",
			Usage: "Force `ENCODING` for ALL non UTF-8 file names in processed archives (see IANA.org for character set names)"},
	}
}
