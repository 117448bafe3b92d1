package qr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSVG(t *testing.T) {
	svg, err := ToSVG("2@abcdefghijklmnop,qrstuvwxyz012345,ABCDEF==")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(svg, "<svg"))
	assert.True(t, strings.HasSuffix(svg, "</svg>"))
	assert.Contains(t, svg, `xmlns="http://www.w3.org/2000/svg"`)
	assert.Greater(t, strings.Count(svg, "<rect"), 100, "a QR code has many dark modules")
}

func TestToSVGDeterministic(t *testing.T) {
	a, err := ToSVG("same-content")
	require.NoError(t, err)
	b, err := ToSVG("same-content")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestToSVGEmptyContent(t *testing.T) {
	_, err := ToSVG("")
	assert.Error(t, err)
}
