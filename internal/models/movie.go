package models

import "time"

// Movie represents a catalog record for one identified title
type Movie struct {
	ID     uint64 `boltholdKey:"ID"`
	IMDBId string `boltholdIndex:"IMDBId"`

	Title  string
	Year   int
	Titles []string // alternative titles used for matching

	Status MovieStatus `boltholdIndex:"Status"`

	// Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
	DoneAt    *time.Time
}

// NameTheTitle returns the title with a leading article moved to the end, e.g. "Matrix, The"
func (m *Movie) NameTheTitle() string {
	for _, article := range []string{"The ", "A ", "An "} {
		if len(m.Title) > len(article) && m.Title[:len(article)] == article {
			return m.Title[len(article):] + ", " + article[:len(article)-1]
		}
	}
	return m.Title
}
