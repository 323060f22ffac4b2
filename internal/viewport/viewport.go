// Package viewport maps the whiteboard camera onto the deck overlay layer.
//
// The whiteboard camera centers on (CenterX, CenterY) at Scale. The deck
// overlay is a separate, unscaled pixel box. ComputeTransform yields the
// translate+scale that keeps the overlay pinned under the drawing layer
// during pan and zoom, without the renderer being involved per frame.
package viewport

import "fmt"

// Camera is the whiteboard camera as reported by the room.
// Width and Height are the visible viewport size; zero means unknown.
type Camera struct {
	CenterX float64
	CenterY float64
	Scale   float64
	Width   float64
	Height  float64
}

// Size is a pixel size.
type Size struct {
	Width  float64
	Height float64
}

// Point is a pixel offset.
type Point struct {
	X float64
	Y float64
}

// Rect is a whiteboard-space rectangle.
type Rect struct {
	OriginX float64
	OriginY float64
	Width   float64
	Height  float64
}

// Transform is the CSS-equivalent transform for the overlay layer.
type Transform struct {
	OriginX    float64
	OriginY    float64
	TranslateX float64
	TranslateY float64
	ScaleX     float64
	ScaleY     float64
}

// Identity returns the no-op transform.
func Identity() Transform {
	return Transform{ScaleX: 1, ScaleY: 1}
}

// ComputeTransform anchors the scale origin at the geometric center of the
// deck box, translates by -(center*scale) plus the offset that centers the
// deck box in the camera viewport, and scales uniformly by the camera scale.
//
// container is the overlay box's offset inside the viewport.
func ComputeTransform(cam Camera, deck Size, container Point) Transform {
	scale := cam.Scale
	if scale <= 0 {
		scale = 1
	}

	var offsetX, offsetY float64
	if cam.Width > 0 {
		offsetX = (cam.Width-deck.Width)/2 - container.X
	}
	if cam.Height > 0 {
		offsetY = (cam.Height-deck.Height)/2 - container.Y
	}

	return Transform{
		OriginX:    deck.Width / 2,
		OriginY:    deck.Height / 2,
		TranslateX: offsetX - cam.CenterX*scale,
		TranslateY: offsetY - cam.CenterY*scale,
		ScaleX:     scale,
		ScaleY:     scale,
	}
}

// CSS renders the transform property value.
func (t Transform) CSS() string {
	return fmt.Sprintf("translate(%spx,%spx) scale(%s, %s)",
		formatFloat(t.TranslateX), formatFloat(t.TranslateY),
		formatFloat(t.ScaleX), formatFloat(t.ScaleY))
}

// CSSOrigin renders the transform-origin property value.
func (t Transform) CSSOrigin() string {
	return fmt.Sprintf("%spx %spx", formatFloat(t.OriginX), formatFloat(t.OriginY))
}

func formatFloat(f float64) string {
	if f == 0 {
		return "0"
	}
	return fmt.Sprintf("%g", f)
}
