package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextDrawer_DrawText(t *testing.T) {
	d, err := NewTextDrawer("")
	require.NoError(t, err)
	defer d.Close()

	img := image.NewRGBA(image.Rect(0, 0, 120, 40))
	d.DrawText(img, "FPS 30.0", 4, 20, color.White)

	var lit int
	for i := 0; i < len(img.Pix); i += 4 {
		if img.Pix[i] > 0 {
			lit++
		}
	}
	assert.Positive(t, lit)
}

func TestTextDrawer_DrawPanel(t *testing.T) {
	d, err := NewTextDrawer("")
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.SetSize(12))

	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	panel := d.DrawPanel(img, []string{"FPS: 30.0", "Effect: blur"}, image.Pt(5, 5), color.White, color.RGBA{A: 255})
	require.False(t, panel.Empty())
	assert.Equal(t, image.Pt(5, 5), panel.Min)

	// 面板底色覆盖了左上角的内边距
	assert.Equal(t, uint8(255), img.RGBAAt(6, 6).A)
	// 面板外保持透明
	assert.Equal(t, uint8(0), img.RGBAAt(199, 99).A)

	assert.True(t, d.DrawPanel(img, nil, image.Pt(0, 0), color.White, nil).Empty())
}

func TestNewTextDrawer_MissingFont(t *testing.T) {
	_, err := NewTextDrawer("./fonts/missing.ttf")
	assert.Error(t, err)
}
