package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// findScenarioFiles expands files and directories into the YAML scenario
// files they name. Directories are walked recursively; filter, when set, is
// a glob matched against the file name without extension. Explicit file
// arguments are never filtered.
func findScenarioFiles(paths []string, filter string) ([]string, error) {
	var files []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("scenario path not found: %s", root), err)
		}
		if !info.IsDir() {
			files = append(files, root)
			continue
		}

		var found []string
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !isScenarioFile(path) {
				return nil
			}
			if filter != "" {
				name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
				matched, err := filepath.Match(filter, name)
				if err != nil {
					return fmt.Errorf("invalid filter pattern: %w", err)
				}
				if !matched {
					return nil
				}
			}
			found = append(found, path)
			return nil
		})
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

func isScenarioFile(path string) bool {
	ext := filepath.Ext(path)
	return ext == ".yaml" || ext == ".yml"
}
