package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShortName(t *testing.T) {
	assert.Equal(t, "open_enter", ShortName("valve.open_enter"))
	assert.Equal(t, "b.c", ShortName("a.b.c"))
	assert.Equal(t, "start", ShortName("start"))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "caf\u00e9", NormalizeName(" cafe\u0301 "))
}

func TestQualify(t *testing.T) {
	assert.Equal(t, "valve.open", Qualify("valve", "open"))
	assert.Equal(t, "open", Qualify("", "open"))
}
