package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticLocator(t *testing.T) {
	loc := NewStaticLocator("https://cdn.example/media/")

	url, err := loc.Locate(context.Background(), "spring promo.mp4")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/media/spring%20promo.mp4", url)

	_, err = loc.Locate(context.Background(), "")
	assert.ErrorIs(t, err, ErrContentNotFound)

	_, err = NewStaticLocator("").Locate(context.Background(), "a.mp4")
	assert.Error(t, err)
}
