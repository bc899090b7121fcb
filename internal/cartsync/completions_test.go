package cartsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompletions_Update(t *testing.T) {
	c := NewCompletions("coll/already")

	assert.Equal(t, []string{"coll/a"}, c.Update([]string{"coll/already", "coll/a"}))
	assert.Empty(t, c.Update([]string{"coll/already", "coll/a"}))
	assert.Equal(t, []string{"coll/c", "coll/b"}, c.Update([]string{"coll/c", "coll/a", "coll/b"}))

	// Removed keys are forgotten and reported again once they come back.
	assert.Empty(t, c.Update([]string{"coll/b"}))
	assert.Equal(t, []string{"coll/a"}, c.Update([]string{"coll/a", "coll/b"}))
}

func TestCompletions_Empty(t *testing.T) {
	c := NewCompletions()

	assert.Empty(t, c.Update(nil))
	assert.Equal(t, []string{"x"}, c.Update([]string{"x"}))
}
