package scanner

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuessNameYear(t *testing.T) {
	guess := GuessNameYear("the matrix 1999", "")
	assert.Equal(t, "the matrix", guess.Name)
	assert.Equal(t, 1999, guess.Year)
	assert.True(t, guess.Valid())
	assert.Equal(t, "the matrix 1999", guess.Query())
}

func TestGuessNameYearWithFile(t *testing.T) {
	guess := GuessNameYear("movie name 2020 1080p", "/downloads/Movie.Name.2020.1080p.BluRay.x264-GROUP.mkv")

	assert.Equal(t, "movie name", strings.ToLower(guess.Name))
	assert.Equal(t, 2020, guess.Year)
	assert.NotNil(t, guess.Other)
}

func TestGuessNameYearWithoutYear(t *testing.T) {
	guess := GuessNameYear("some movie", "")
	assert.False(t, guess.Valid())
}
