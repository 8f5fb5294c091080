package handlers

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"math"
	"net/http"
	"sync"

	"github.com/nfnt/resize"
)

const (
	// The basket is drawn on a 500x500 canvas and scaled down to the icon size.
	iconCanvas = 500
	iconSize   = 32
)

var (
	iconOnce  sync.Once
	iconBytes []byte
	iconErr   error
)

// Icon serves the 32x32 basket favicon.
func Icon(w http.ResponseWriter, r *http.Request) {
	iconOnce.Do(func() {
		iconBytes, iconErr = renderIcon(iconSize)
	})
	if iconErr != nil {
		slog.Error("Failed to render icon", "error", iconErr)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(iconBytes)
}

func renderIcon(size uint) ([]byte, error) {
	small := resize.Resize(size, size, drawBasket(), resize.Lanczos3)
	var buf bytes.Buffer
	if err := png.Encode(&buf, small); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type point struct{ x, y float64 }

var (
	gradientFrom = color.RGBA{0x00, 0xC6, 0xFF, 0xFF}
	gradientTo   = color.RGBA{0x00, 0x72, 0xFF, 0xFF}

	basketBody = []point{{100, 120}, {400, 120}, {370, 260}, {130, 260}}
	handle     = []point{{160, 120}, {230, 50}, {270, 50}, {340, 120}}
	wheels     = []point{{170, 325}, {330, 325}}
)

// drawBasket rasterizes the shop logo: a handled basket with two rows of
// cutouts on a wheeled axle, filled with a diagonal blue gradient.
func drawBasket() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, iconCanvas, iconCanvas))
	for y := 0; y < iconCanvas; y++ {
		for x := 0; x < iconCanvas; x++ {
			p := point{float64(x) + 0.5, float64(y) + 0.5}
			switch {
			case inCutout(p):
				img.SetRGBA(x, y, color.RGBA{0xFF, 0xFF, 0xFF, 0xFF})
			case inBasket(p):
				img.SetRGBA(x, y, gradient(p))
			}
		}
	}
	return img
}

func inBasket(p point) bool {
	if inConvex(p, basketBody) || nearPath(p, basketBody, true, 15) {
		return true
	}
	if nearPath(p, handle[:2], false, 17.5) || nearPath(p, handle[2:], false, 17.5) {
		return true
	}
	// Top half of the handle's arc, centered between its two endpoints.
	if d := dist(p, point{250, 50}); p.y <= 50 && d >= 2.5 && d <= 37.5 {
		return true
	}
	if nearPath(p, wheels, false, 15) {
		return true
	}
	for _, c := range wheels {
		if d := dist(p, c); d >= 25 && d <= 45 {
			return true
		}
	}
	return false
}

func inCutout(p point) bool {
	for _, y := range []float64{140, 200} {
		for _, x := range []float64{155, 205, 265, 315} {
			if inRoundedRect(p, x, y, 30, 40, 10) {
				return true
			}
		}
	}
	return false
}

func gradient(p point) color.RGBA {
	t := (p.x + p.y) / (2 * iconCanvas)
	lerp := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a) + (float64(b)-float64(a))*t))
	}
	return color.RGBA{
		R: lerp(gradientFrom.R, gradientTo.R),
		G: lerp(gradientFrom.G, gradientTo.G),
		B: lerp(gradientFrom.B, gradientTo.B),
		A: 0xFF,
	}
}

func dist(a, b point) float64 {
	return math.Hypot(a.x-b.x, a.y-b.y)
}

// segmentDist is the distance from p to the segment ab.
func segmentDist(p, a, b point) float64 {
	dx, dy := b.x-a.x, b.y-a.y
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return dist(p, a)
	}
	t := math.Max(0, math.Min(1, ((p.x-a.x)*dx+(p.y-a.y)*dy)/l2))
	return dist(p, point{a.x + t*dx, a.y + t*dy})
}

// nearPath reports whether p lies within halfWidth of the polyline pts.
func nearPath(p point, pts []point, closed bool, halfWidth float64) bool {
	n := len(pts)
	last := n - 1
	if closed {
		last = n
	}
	for i := 0; i < last; i++ {
		if segmentDist(p, pts[i], pts[(i+1)%n]) <= halfWidth {
			return true
		}
	}
	return false
}

// inConvex reports whether p is inside the convex polygon pts, given in
// clockwise screen order.
func inConvex(p point, pts []point) bool {
	for i := range pts {
		a, b := pts[i], pts[(i+1)%len(pts)]
		if (b.x-a.x)*(p.y-a.y)-(b.y-a.y)*(p.x-a.x) < 0 {
			return false
		}
	}
	return true
}

func inRoundedRect(p point, x, y, w, h, r float64) bool {
	if p.x < x || p.x > x+w || p.y < y || p.y > y+h {
		return false
	}
	cx := math.Max(x+r, math.Min(p.x, x+w-r))
	cy := math.Max(y+r, math.Min(p.y, y+h-r))
	return dist(p, point{cx, cy}) <= r
}
