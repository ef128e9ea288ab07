// Package imagefolder loads class-labeled image directories
// (root/<class>/<image>) as training samples.
package imagefolder

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

type Item struct {
	Path  string
	Label int
}

// Folder lists the images of one subset. Classes are the sorted
// subdirectory names and Label indexes into Classes.
type Folder struct {
	Root    string
	Classes []string
	Items   []Item
}

var ErrEmptyFolder = errors.New("no images found")

func Scan(fs afero.Fs, root string) (*Folder, error) {
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, errors.Wrapf(err, "read image folder %v", root)
	}
	var result = &Folder{Root: root}
	for _, entry := range entries {
		if entry.IsDir() {
			result.Classes = append(result.Classes, entry.Name())
		}
	}
	sort.Strings(result.Classes)

	for label, class := range result.Classes {
		files, err := afero.ReadDir(fs, filepath.Join(root, class))
		if err != nil {
			return nil, err
		}
		var names []string
		for _, file := range files {
			if !file.IsDir() && imageExtensions[strings.ToLower(filepath.Ext(file.Name()))] {
				names = append(names, file.Name())
			}
		}
		sort.Strings(names)
		for _, name := range names {
			result.Items = append(result.Items, Item{
				Path:  filepath.Join(root, class, name),
				Label: label,
			})
		}
	}
	if len(result.Items) == 0 {
		return nil, errors.Wrapf(ErrEmptyFolder, "%v", root)
	}
	return result, nil
}

func (f *Folder) Len() int {
	return len(f.Items)
}

// ClassCounts returns the number of images per class.
func (f *Folder) ClassCounts() []int {
	var result = make([]int, len(f.Classes))
	for _, item := range f.Items {
		result[item.Label]++
	}
	return result
}

func SameClasses(a, b *Folder) bool {
	if len(a.Classes) != len(b.Classes) {
		return false
	}
	for i := range a.Classes {
		if a.Classes[i] != b.Classes[i] {
			return false
		}
	}
	return true
}
