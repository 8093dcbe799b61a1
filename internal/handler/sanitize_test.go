package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"game.html":            "game.html",
		"My Game!.html":        "My_Game.html",
		"../../etc/x.html":     "x.html",
		`C:\Users\me\a b.HTML`: "a_b.HTML",
		"..hidden.html":        "hidden.html",
	}
	for in, want := range cases {
		got, ok := sanitizeFilename(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "x.htm", "notes.txt", ".html", "___.html"} {
		_, ok := sanitizeFilename(bad)
		assert.False(t, ok, bad)
	}
}
