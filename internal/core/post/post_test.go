package post

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMentions(t *testing.T) {
	cases := []struct {
		body string
		want []string
	}{
		{"hello @bob", []string{"bob"}},
		{"@bob @carol, and @Bob again", []string{"bob", "carol"}},
		{"@al is too short", nil},
		{"mail me at joe@example.com", nil},
		{"@seventeen_chars_x is too long", nil},
		{"@dave: hi; @erin.", []string{"dave", "erin"}},
		{"@frank! is not a tag", nil},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Mentions(tc.body), tc.body)
	}
}

func TestIsDeleted(t *testing.T) {
	p := &Post{}
	assert.False(t, p.IsDeleted())
	now := time.Now()
	p.DeletedAt = &now
	assert.True(t, p.IsDeleted())
}
