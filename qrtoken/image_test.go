package qrtoken

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPNG(t *testing.T) {
	codec, _ := newTestCodec(t)
	token, err := codec.Issue("event-1", "guest-1", "Ada", time.Hour)
	require.NoError(t, err)

	data, err := PNG(token, 0)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, DefaultImageSize, img.Bounds().Dx())
}

func TestPNG_EmptyToken(t *testing.T) {
	_, err := PNG("", 200)
	require.ErrorIs(t, err, ErrInvalidFormat)
}
