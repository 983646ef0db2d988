// Package viewer serves the report image page.
package viewer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/muradrava/reportsync/internal/models"
)

// keywords maps the name fragments recognized as reports to their kind.
// The Croatian names are what older archives carry.
var keywords = []struct {
	word string
	kind models.Kind
}{
	{"regular", models.KindRegular},
	{"redovni", models.KindRegular},
	{"special", models.KindSpecial},
	{"posebni", models.KindSpecial},
}

var imageExts = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
}

// KindOf returns the report kind named in file, or "" if none is.
func KindOf(name string) models.Kind {
	lower := strings.ToLower(filepath.Base(name))
	for _, k := range keywords {
		if strings.Contains(lower, k.word) {
			return k.kind
		}
	}
	return ""
}

// IsImage reports whether name has a supported image extension.
func IsImage(name string) bool {
	_, ok := imageExts[extOf(name)]
	return ok
}

// ContentType returns the MIME type for a supported image name.
func ContentType(name string) string {
	if ct, ok := imageExts[extOf(name)]; ok {
		return ct
	}
	return "application/octet-stream"
}

func extOf(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// All lists every supported image in dir, newest name first.
func All(dir string) ([]models.ReportFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	var files []models.ReportFile
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		files = append(files, models.ReportFile{
			Name: e.Name(),
			Path: filepath.Join(dir, e.Name()),
			Kind: KindOf(e.Name()),
		})
	}

	// Archived names start with the date and hour, so the greatest name is
	// the most recent report.
	sort.Slice(files, func(i, j int) bool { return files[i].Name > files[j].Name })
	return files, nil
}

// Scan lists the report images in dir, creating dir when it is missing so
// that an empty directory simply yields no matches.
func Scan(dir string) ([]models.ReportFile, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	all, err := All(dir)
	if err != nil {
		return nil, err
	}

	var reports []models.ReportFile
	for _, f := range all {
		if f.Kind != "" {
			reports = append(reports, f)
		}
	}
	return reports, nil
}
