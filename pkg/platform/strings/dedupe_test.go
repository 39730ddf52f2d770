package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupeAndTrim(t *testing.T) {
	assert.Equal(t, []string{"foo", "bar"}, DedupeAndTrim([]string{"  foo ", "bar", "foo", "", "  "}))
	assert.Equal(t, []string{}, DedupeAndTrim(nil))
}

func TestDedupeAndTrimUpper(t *testing.T) {
	got := DedupeAndTrimUpper([]string{" vitals", "VITALS", "", "allergies", "Vitals "})
	assert.Equal(t, []string{"VITALS", "ALLERGIES"}, got)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitList("a:9092, b:9092,,a:9092"))
	assert.Nil(t, SplitList("  "))
}
