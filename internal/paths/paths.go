package paths

import (
	"errors"
	"fmt"
	"time"

	"github.com/carbondale-church/archiver"
)

var ErrUnsupportedCategory = errors.New("category has no destination path")

const (
	FolderMemorial      = "Memorial Services"
	FolderHoliday       = "Holiday Services"
	FolderChristmas     = "Christmas At Carbondale"
	FolderUncategorized = "Uncategorized"
)

// Set is a collection of destination paths that already exist (on disk, or assigned
// earlier in the same run)
type Set map[archiver.DestinationPath]struct{}

func NewSet(paths ...archiver.DestinationPath) Set {
	s := make(Set, len(paths))
	for _, p := range paths {
		s.Add(p)
	}
	return s
}

func (s Set) Add(p archiver.DestinationPath) {
	s[p] = struct{}{}
}

func (s Set) Contains(p archiver.DestinationPath) bool {
	_, ok := s[p]
	return ok
}

// Folder returns the folder that recordings of the given category are filed under
func Folder(category archiver.Category) (string, error) {
	switch category.Kind {
	case archiver.CategoryFirstService, archiver.CategorySundaySchool, archiver.CategorySecondService, archiver.CategoryWednesdayNight:
		return string(category.Kind), nil
	case archiver.CategoryMemorial:
		return FolderMemorial, nil
	case archiver.CategoryHoliday:
		return FolderHoliday, nil
	case archiver.CategoryChristmasAtCarbondale:
		return FolderChristmas, nil
	case archiver.CategoryUncategorized:
		return FolderUncategorized, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedCategory, category)
}

// Build returns the destination for a recording. The result depends only on its
// arguments, so re-running with the same existing set yields the same path.
// Youth broadcasts must be filtered out by the caller; they yield
// ErrUnsupportedCategory.
func Build(category archiver.Category, title string, scheduledDate time.Time, year int, existing Set) (archiver.DestinationPath, error) {
	folder, err := Folder(category)
	if err != nil {
		return archiver.DestinationPath{}, err
	}
	dated := fmt.Sprintf("%s - %s", scheduledDate.Format("2006-01-02"), title)

	switch category.Kind {
	case archiver.CategoryMemorial:
		return archiver.DestinationPath{Folder: folder, BaseName: title}, nil
	case archiver.CategoryHoliday:
		return archiver.DestinationPath{Folder: folder, BaseName: fmt.Sprintf("%d %s", year, category.Holiday)}, nil
	case archiver.CategoryChristmasAtCarbondale:
		return christmasPath(folder, year, existing), nil
	}
	return archiver.DestinationPath{Folder: folder, BaseName: dated}, nil
}

// christmasPath takes the plain yearly name if it's free, otherwise the lowest free
// " Service N" suffix starting at 2
func christmasPath(folder string, year int, existing Set) archiver.DestinationPath {
	base := fmt.Sprintf("%d Christmas At Carbondale", year)
	candidate := archiver.DestinationPath{Folder: folder, BaseName: base}
	for n := 2; existing.Contains(candidate); n++ {
		candidate.BaseName = fmt.Sprintf("%s Service %d", base, n)
	}
	return candidate
}
