package paths

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (

	// Name used for directory and file naming.
	appName = "pinbuild"

	// Default pipeline definition file name.
	DefinitionFile = "pinbuild.yaml"

	// Default permission mode for directories.
	DefaultDirMode os.FileMode = 0755

	// Default permission mode for files.
	DefaultFileMode os.FileMode = 0644

	// Permission mode for installed executables.
	ExecutableMode os.FileMode = 0755
)

// Root directory under which host environments create their scratch roots.
//
//	Linux:   $XDG_CACHE_HOME/pinbuild/envs
//	macOS:   ~/Library/Caches/pinbuild/envs
func Environments() string {
	return filepath.Join(xdg.CacheHome, appName, "envs")
}

// Directory holding the user-level pipeline definition.
//
//	Linux:   $XDG_CONFIG_HOME/pinbuild
//	macOS:   ~/Library/Application Support/pinbuild
func Config() string {
	return filepath.Join(xdg.ConfigHome, appName)
}

// Resolves the pipeline definition to load.
//
// An explicit path wins. Otherwise pinbuild.yaml in the working directory is
// used when present, falling back to the user-level definition.
func Definition(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if _, err := os.Stat(DefinitionFile); err == nil {
		return DefinitionFile
	}
	return filepath.Join(Config(), DefinitionFile)
}
