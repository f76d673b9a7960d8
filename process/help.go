package process

import (
	"fmt"

	cli "github.com/urfave/cli/v3"
)

// Subcommand help templates, standard command help followed by argument
// descriptions.
var (
	ExtractHelp = fmt.Sprintf(`%s
SOURCE:
    path to HTML page(s) to process, following formats are supported:
        path to a file: "[path_to_file]page.html"
        path to a directory: "[path_to_directory]directory" - recursively process all pages and zip archives under directory (symbolic links are not followed)
        path to archive with path inside archive to a particular page: "[path_to_archive]archive.zip[path_in_archive]/page.html"
        path to archive with path inside archive: "[path_to_archive]archive.zip[path_in_archive]" - recursively process all pages under archive path

	Pages are recognized by content or by extension (.html, .htm, .xhtml, .shtml),
	processing of archives inside archives is not supported.

RULES:
    keep and discard rules are XPath 1.0 expressions, both could be repeated and
    added to the ones from configuration file. Node is kept if it, one of its
    ancestors or descendants is selected by a keep rule and it is not inside
    discarded subtree which itself is not explicitly kept.

DESTINATION:
    always a path, output file name(s) and extension will be derived from other parameters
    if absent - current working directory
`, cli.CommandHelpTemplate)

	DumpConfigHelp = fmt.Sprintf(`%s

DESTINATION:
    file name to write configuration to, if absent - STDOUT

Produces file with actual "active" configuration values which is composition of
default values and values specified in configuration file. To see default
configuration embedded into the program use --default flag.
`, cli.CommandHelpTemplate)
)
