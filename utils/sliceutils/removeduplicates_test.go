package sliceutils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRemoveDuplicates(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, RemoveDuplicates([]string{"a", "b", "a", "c", "b"}))
	assert.Nil(t, RemoveDuplicates[string](nil))
}

func TestRemoveDuplicatesFunc(t *testing.T) {
	out := RemoveDuplicatesFunc([]string{"http://A", "http://b", "http://a"}, strings.ToLower)
	assert.Equal(t, []string{"http://A", "http://b"}, out)
}
