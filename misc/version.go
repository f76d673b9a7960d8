// Package misc keeps build time information about the program.
package misc

// set by the linker: -X chopper/misc.version=... -X chopper/misc.gitHash=...
var (
	version = "dev"
	gitHash = "unknown"
	appName = "chopper"
)

// GetVersion returns program version.
func GetVersion() string {
	return version
}

// GetGitHash returns git hash the program was built from.
func GetGitHash() string {
	return gitHash
}

// GetAppName returns program name used for logs, reports and temporary files.
func GetAppName() string {
	return appName
}
