package preprocess

import (
	"image"
	"math"
	"runtime"
	"sync"

	xdraw "golang.org/x/image/draw"
)

// All helpers operate on *image.Gray values whose origin is (0,0) and whose
// stride equals their width; toGray guarantees that for the pipeline input.

func toGray(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	xdraw.Draw(gray, gray.Bounds(), img, b.Min, xdraw.Src)
	return gray
}

// parallelRows splits [0,height) into horizontal strips processed concurrently
func parallelRows(height int, fn func(startY, endY int)) {
	numWorkers := runtime.NumCPU()
	if height < 64 || numWorkers == 1 {
		fn(0, height)
		return
	}
	if height < numWorkers {
		numWorkers = height
	}
	rowsPerWorker := (height + numWorkers - 1) / numWorkers

	var wg sync.WaitGroup
	for startY := 0; startY < height; startY += rowsPerWorker {
		endY := min(startY+rowsPerWorker, height)
		wg.Add(1)
		go func(startY, endY int) {
			defer wg.Done()
			fn(startY, endY)
		}(startY, endY)
	}
	wg.Wait()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// medianBlur3 applies a 3x3 median filter with replicated borders
func medianBlur3(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, w, h))

	parallelRows(h, func(startY, endY int) {
		var win [9]uint8
		for y := startY; y < endY; y++ {
			for x := 0; x < w; x++ {
				n := 0
				for dy := -1; dy <= 1; dy++ {
					yy := clampInt(y+dy, 0, h-1)
					for dx := -1; dx <= 1; dx++ {
						xx := clampInt(x+dx, 0, w-1)
						win[n] = src.Pix[yy*src.Stride+xx]
						n++
					}
				}
				// insertion sort of nine values
				for i := 1; i < 9; i++ {
					v := win[i]
					j := i - 1
					for j >= 0 && win[j] > v {
						win[j+1] = win[j]
						j--
					}
					win[j+1] = v
				}
				dst.Pix[y*dst.Stride+x] = win[4]
			}
		}
	})
	return dst
}

// clahe performs contrast-limited adaptive histogram equalization on a grid x grid
// tiling with bilinear interpolation between tile mappings.
func clahe(src *image.Gray, clipLimit float64, grid int) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if grid < 1 {
		grid = 1
	}
	tileW := (w + grid - 1) / grid
	tileH := (h + grid - 1) / grid
	tilesX := (w + tileW - 1) / tileW
	tilesY := (h + tileH - 1) / tileH

	luts := make([][256]uint8, tilesX*tilesY)
	for ty := 0; ty < tilesY; ty++ {
		for tx := 0; tx < tilesX; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := min(x0+tileW, w), min(y0+tileH, h)
			luts[ty*tilesX+tx] = tileLUT(src, x0, y0, x1, y1, clipLimit)
		}
	}

	dst := image.NewGray(image.Rect(0, 0, w, h))
	parallelRows(h, func(startY, endY int) {
		for y := startY; y < endY; y++ {
			fy := (float64(y)+0.5)/float64(tileH) - 0.5
			ty0 := int(math.Floor(fy))
			wy := fy - float64(ty0)
			ty1 := clampInt(ty0+1, 0, tilesY-1)
			ty0 = clampInt(ty0, 0, tilesY-1)

			for x := 0; x < w; x++ {
				fx := (float64(x)+0.5)/float64(tileW) - 0.5
				tx0 := int(math.Floor(fx))
				wx := fx - float64(tx0)
				tx1 := clampInt(tx0+1, 0, tilesX-1)
				tx0 = clampInt(tx0, 0, tilesX-1)

				v := src.Pix[y*src.Stride+x]
				top := (1-wx)*float64(luts[ty0*tilesX+tx0][v]) + wx*float64(luts[ty0*tilesX+tx1][v])
				bottom := (1-wx)*float64(luts[ty1*tilesX+tx0][v]) + wx*float64(luts[ty1*tilesX+tx1][v])
				out := (1-wy)*top + wy*bottom
				dst.Pix[y*dst.Stride+x] = uint8(clampInt(int(math.Round(out)), 0, 255))
			}
		}
	})
	return dst
}

func tileLUT(src *image.Gray, x0, y0, x1, y1 int, clipLimit float64) [256]uint8 {
	var hist [256]int
	for y := y0; y < y1; y++ {
		row := src.Pix[y*src.Stride:]
		for x := x0; x < x1; x++ {
			hist[row[x]]++
		}
	}
	area := (x1 - x0) * (y1 - y0)

	if clipLimit > 0 {
		clip := max(int(clipLimit*float64(area)/256), 1)
		excess := 0
		for i := range hist {
			if hist[i] > clip {
				excess += hist[i] - clip
				hist[i] = clip
			}
		}
		redist := excess / 256
		residual := excess - redist*256
		for i := range hist {
			hist[i] += redist
		}
		if residual > 0 {
			step := max(256/residual, 1)
			for i := 0; i < 256 && residual > 0; i += step {
				hist[i]++
				residual--
			}
		}
	}

	var lut [256]uint8
	scale := 255.0 / float64(area)
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = uint8(clampInt(int(math.Round(float64(sum)*scale)), 0, 255))
	}
	return lut
}

// otsuThreshold returns the threshold that maximizes between-class variance
func otsuThreshold(src *image.Gray) uint8 {
	var hist [256]int
	for _, v := range src.Pix {
		hist[v]++
	}
	total := len(src.Pix)
	sum := 0.0
	for i, c := range hist {
		sum += float64(i * c)
	}

	var sumB, best float64
	best = -1
	wB := 0
	t := 0
	for i := 0; i < 256; i++ {
		wB += hist[i]
		if wB == 0 {
			continue
		}
		wF := total - wB
		if wF == 0 {
			break
		}
		sumB += float64(i * hist[i])
		mB := sumB / float64(wB)
		mF := (sum - sumB) / float64(wF)
		between := float64(wB) * float64(wF) * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			t = i
		}
	}
	return uint8(t)
}

// threshold maps values above t to 255 and everything else to 0
func threshold(src *image.Gray, t uint8) *image.Gray {
	dst := image.NewGray(src.Rect)
	for i, v := range src.Pix {
		if v > t {
			dst.Pix[i] = 255
		}
	}
	return dst
}

// upscale2x doubles both dimensions using Catmull-Rom (bicubic) interpolation
func upscale2x(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(image.Rect(0, 0, 2*w, 2*h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

func invert(src *image.Gray) *image.Gray {
	dst := image.NewGray(src.Rect)
	for i, v := range src.Pix {
		dst.Pix[i] = 255 - v
	}
	return dst
}

// closing2x2 is a dilation followed by an erosion with a 2x2 structuring element.
// Offsets outside the image are ignored.
func closing2x2(src *image.Gray) *image.Gray {
	dilated := morph(src, -1, true)
	return morph(dilated, 1, false)
}

// morph applies a 2x2 max (dilate) or min (erode) filter covering the pixel and its
// neighbours at offset d in x and y.
func morph(src *image.Gray, d int, dilate bool) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	dst := image.NewGray(src.Rect)
	parallelRows(h, func(startY, endY int) {
		for y := startY; y < endY; y++ {
			for x := 0; x < w; x++ {
				v := src.Pix[y*src.Stride+x]
				for _, o := range [3][2]int{{d, 0}, {0, d}, {d, d}} {
					xx, yy := x+o[0], y+o[1]
					if xx < 0 || yy < 0 || xx >= w || yy >= h {
						continue
					}
					n := src.Pix[yy*src.Stride+xx]
					if (dilate && n > v) || (!dilate && n < v) {
						v = n
					}
				}
				dst.Pix[y*dst.Stride+x] = v
			}
		}
	})
	return dst
}

// maskOutside keeps pixels inside any of boxes and turns the rest into white background
func maskOutside(src *image.Gray, boxes []image.Rectangle) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	inside := make([]bool, w*h)
	for _, r := range boxes {
		// boxes are filled inclusive of their far edge
		for y := r.Min.Y; y <= r.Max.Y && y < h; y++ {
			for x := r.Min.X; x <= r.Max.X && x < w; x++ {
				inside[y*w+x] = true
			}
		}
	}
	dst := image.NewGray(src.Rect)
	for i, v := range src.Pix {
		if inside[i] {
			dst.Pix[i] = v
		} else {
			dst.Pix[i] = 255
		}
	}
	return dst
}
