package paths

import (
	"testing"
	"time"

	"github.com/carbondale-church/archiver"
	"github.com/stretchr/testify/assert"
)

func Test_Build(t *testing.T) {
	date := time.Date(2024, 6, 9, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		category archiver.Category
		title    string
		want     archiver.DestinationPath
	}{
		{
			"first service",
			archiver.Category{Kind: archiver.CategoryFirstService},
			"Sunday Worship",
			archiver.DestinationPath{Folder: "1st Service", BaseName: "2024-06-09 - Sunday Worship"},
		},
		{
			"sunday school",
			archiver.Category{Kind: archiver.CategorySundaySchool},
			"Adult Class",
			archiver.DestinationPath{Folder: "Sunday School", BaseName: "2024-06-09 - Adult Class"},
		},
		{
			"second service",
			archiver.Category{Kind: archiver.CategorySecondService},
			"Sunday Worship",
			archiver.DestinationPath{Folder: "2nd Service", BaseName: "2024-06-09 - Sunday Worship"},
		},
		{
			"wednesday night",
			archiver.Category{Kind: archiver.CategoryWednesdayNight},
			"Bible Study",
			archiver.DestinationPath{Folder: "Wednesday Night", BaseName: "2024-06-09 - Bible Study"},
		},
		{
			"memorial keeps the title unmodified",
			archiver.Category{Kind: archiver.CategoryMemorial},
			"Memorial: Jane Doe / 1940-2024",
			archiver.DestinationPath{Folder: "Memorial Services", BaseName: "Memorial: Jane Doe / 1940-2024"},
		},
		{
			"holiday uses year and holiday name",
			archiver.Holiday("Good Friday"),
			"Good Friday Tenebrae",
			archiver.DestinationPath{Folder: "Holiday Services", BaseName: "2024 Good Friday"},
		},
		{
			"christmas at carbondale",
			archiver.Category{Kind: archiver.CategoryChristmasAtCarbondale},
			"Christmas at Carbondale",
			archiver.DestinationPath{Folder: "Christmas At Carbondale", BaseName: "2024 Christmas At Carbondale"},
		},
		{
			"uncategorized",
			archiver.Category{Kind: archiver.CategoryUncategorized},
			"Board Meeting",
			archiver.DestinationPath{Folder: "Uncategorized", BaseName: "2024-06-09 - Board Meeting"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Build(tt.category, tt.title, date, 2024, NewSet())
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_Build_youthIsUnsupported(t *testing.T) {
	_, err := Build(archiver.Category{Kind: archiver.CategoryYouth}, "Youth Service", time.Now(), 2024, NewSet())
	assert.ErrorIs(t, err, ErrUnsupportedCategory)
}

func Test_Build_isDeterministic(t *testing.T) {
	existing := NewSet(archiver.DestinationPath{Folder: FolderChristmas, BaseName: "2024 Christmas At Carbondale"})
	date := time.Date(2024, 12, 8, 0, 0, 0, 0, time.UTC)
	category := archiver.Category{Kind: archiver.CategoryChristmasAtCarbondale}

	first, err := Build(category, "Christmas at Carbondale", date, 2024, existing)
	assert.NoError(t, err)
	second, err := Build(category, "Christmas at Carbondale", date, 2024, existing)
	assert.NoError(t, err)
	assert.Equal(t, first, second)
}

func Test_Build_christmasCollisions(t *testing.T) {
	date := time.Date(2024, 12, 8, 0, 0, 0, 0, time.UTC)
	category := archiver.Category{Kind: archiver.CategoryChristmasAtCarbondale}
	existing := NewSet()

	var names []string
	for i := 0; i < 3; i++ {
		p, err := Build(category, "Christmas at Carbondale", date, 2024, existing)
		assert.NoError(t, err)
		existing.Add(p)
		names = append(names, p.BaseName)
	}
	assert.Equal(t, []string{
		"2024 Christmas At Carbondale",
		"2024 Christmas At Carbondale Service 2",
		"2024 Christmas At Carbondale Service 3",
	}, names)
}

func Test_Build_christmasTakesLowestFreeSuffix(t *testing.T) {
	existing := NewSet(
		archiver.DestinationPath{Folder: FolderChristmas, BaseName: "2024 Christmas At Carbondale"},
		archiver.DestinationPath{Folder: FolderChristmas, BaseName: "2024 Christmas At Carbondale Service 3"},
		archiver.DestinationPath{Folder: FolderChristmas, BaseName: "2023 Christmas At Carbondale Service 2"},
	)
	got, err := Build(archiver.Category{Kind: archiver.CategoryChristmasAtCarbondale}, "", time.Now(), 2024, existing)
	assert.NoError(t, err)
	assert.Equal(t, "2024 Christmas At Carbondale Service 2", got.BaseName)
}

func Test_DestinationPath_FileName(t *testing.T) {
	p := archiver.DestinationPath{Folder: FolderMemorial, BaseName: `Memorial:  Jane "JD" Doe`}
	assert.Equal(t, "Memorial_ Jane _JD_ Doe.mp4", p.FileName())
	assert.Equal(t, "/srv/boxcast/Memorial Services/Memorial_ Jane _JD_ Doe.mp4", p.Join("/srv/boxcast"))
}
