package viewport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeTransform(t *testing.T) {
	deck := Size{Width: 1280, Height: 720}

	tests := []struct {
		name      string
		cam       Camera
		container Point
		want      Transform
	}{
		{
			name: "centered at rest",
			cam:  Camera{Scale: 1},
			want: Transform{OriginX: 640, OriginY: 360, ScaleX: 1, ScaleY: 1},
		},
		{
			name: "pan and zoom",
			cam:  Camera{CenterX: 100, CenterY: -50, Scale: 2},
			want: Transform{OriginX: 640, OriginY: 360, TranslateX: -200, TranslateY: 100, ScaleX: 2, ScaleY: 2},
		},
		{
			name: "viewport larger than deck",
			cam:  Camera{Scale: 1, Width: 1480, Height: 920},
			want: Transform{OriginX: 640, OriginY: 360, TranslateX: 100, TranslateY: 100, ScaleX: 1, ScaleY: 1},
		},
		{
			name:      "container offset",
			cam:       Camera{Scale: 1, Width: 1480, Height: 920},
			container: Point{X: 40, Y: 10},
			want:      Transform{OriginX: 640, OriginY: 360, TranslateX: 60, TranslateY: 90, ScaleX: 1, ScaleY: 1},
		},
		{
			name: "non-positive scale treated as one",
			cam:  Camera{CenterX: 10, Scale: 0},
			want: Transform{OriginX: 640, OriginY: 360, TranslateX: -10, ScaleX: 1, ScaleY: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeTransform(tt.cam, deck, tt.container))
		})
	}
}

func TestTransform_CSS(t *testing.T) {
	tr := ComputeTransform(Camera{CenterX: 100, CenterY: 50, Scale: 1.5}, Size{Width: 800, Height: 600}, Point{})

	assert.Equal(t, "translate(-150px,-75px) scale(1.5, 1.5)", tr.CSS())
	assert.Equal(t, "400px 300px", tr.CSSOrigin())
	assert.Equal(t, "translate(0px,0px) scale(1, 1)", Identity().CSS())
}
