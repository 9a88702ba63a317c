package validate

import (
	"fmt"

	"github.com/gep-landslides/slidepanel/internal/utils"
)

// Directory validates that given path is an existing directory
func Directory(dirPath string) error {
	if !utils.IsDirectory(dirPath) {
		return fmt.Errorf("%s does not exist or is no directory", dirPath)
	}
	return nil
}

// Files validates that every given path is an existing file
func Files(filePaths ...string) error {
	for _, p := range filePaths {
		if p == "" {
			continue
		}
		if !utils.IsFile(p) {
			return fmt.Errorf("%s is missing", p)
		}
	}
	return nil
}

// YearFiles validates the files a path template expands to over years
func YearFiles(path func(year int) string, years []int) error {
	for _, y := range years {
		if err := Files(path(y)); err != nil {
			return err
		}
	}
	return nil
}
