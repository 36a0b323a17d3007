package preprocess

import "image"

const (
	tan22 = 0.41421356
	tan67 = 2.41421356
)

// sobelX computes the horizontal Sobel gradient at an interior pixel
func sobelX(gray *image.Gray, x, y int) int {
	s := gray.Stride
	p := gray.Pix
	return -int(p[(y-1)*s+x-1]) + int(p[(y-1)*s+x+1]) +
		-2*int(p[y*s+x-1]) + 2*int(p[y*s+x+1]) +
		-int(p[(y+1)*s+x-1]) + int(p[(y+1)*s+x+1])
}

// sobelY computes the vertical Sobel gradient at an interior pixel
func sobelY(gray *image.Gray, x, y int) int {
	s := gray.Stride
	p := gray.Pix
	return -int(p[(y-1)*s+x-1]) - 2*int(p[(y-1)*s+x]) - int(p[(y-1)*s+x+1]) +
		int(p[(y+1)*s+x-1]) + 2*int(p[(y+1)*s+x]) + int(p[(y+1)*s+x+1])
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// canny returns an edge map (row-major, true = edge) using the L1 gradient norm,
// non-maximum suppression and hysteresis between low and high.
func canny(gray *image.Gray, low, high int) []bool {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	edges := make([]bool, w*h)
	if w < 3 || h < 3 {
		return edges
	}

	mag := make([]int, w*h)
	gxs := make([]int, w*h)
	gys := make([]int, w*h)
	parallelRows(h, func(startY, endY int) {
		for y := max(startY, 1); y < endY && y < h-1; y++ {
			for x := 1; x < w-1; x++ {
				gx, gy := sobelX(gray, x, y), sobelY(gray, x, y)
				i := y*w + x
				gxs[i], gys[i] = gx, gy
				mag[i] = abs(gx) + abs(gy)
			}
		}
	})

	const (
		none = iota
		weak
		strong
	)
	state := make([]uint8, w*h)
	var stack []int
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := mag[i]
			if m <= low {
				continue
			}
			ax, ay := float64(abs(gxs[i])), float64(abs(gys[i]))
			var a, b int
			switch {
			case ay <= ax*tan22:
				a, b = mag[i-1], mag[i+1]
			case ay >= ax*tan67:
				a, b = mag[i-w], mag[i+w]
			case (gxs[i] < 0) != (gys[i] < 0):
				a, b = mag[i-w+1], mag[i+w-1]
			default:
				a, b = mag[i-w-1], mag[i+w+1]
			}
			if m <= a || m < b {
				continue
			}
			if m > high {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}

	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		edges[i] = true
		x, y := i%w, i/w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				xx, yy := x+dx, y+dy
				if xx < 0 || yy < 0 || xx >= w || yy >= h {
					continue
				}
				j := yy*w + xx
				if state[j] == weak {
					state[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}
	return edges
}

// externalContourBoxes returns the bounding boxes of the outermost edge components:
// 8-connected groups of edge pixels that touch the background connected to the
// image border. Components enclosed by another component are skipped.
func externalContourBoxes(edges []bool, w, h int) []image.Rectangle {
	// Background reachable from the border, 4-connected.
	outside := make([]bool, w*h)
	var queue []int
	seed := func(i int) {
		if !edges[i] && !outside[i] {
			outside[i] = true
			queue = append(queue, i)
		}
	}
	for x := 0; x < w; x++ {
		seed(x)
		seed((h-1)*w + x)
	}
	for y := 0; y < h; y++ {
		seed(y * w)
		seed(y*w + w - 1)
	}
	for len(queue) > 0 {
		i := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		x, y := i%w, i/w
		if x > 0 {
			seed(i - 1)
		}
		if x < w-1 {
			seed(i + 1)
		}
		if y > 0 {
			seed(i - w)
		}
		if y < h-1 {
			seed(i + w)
		}
	}

	touchesOutside := func(x, y int) bool {
		if x == 0 || y == 0 || x == w-1 || y == h-1 {
			return true
		}
		i := y*w + x
		return outside[i-1] || outside[i+1] || outside[i-w] || outside[i+w]
	}

	var boxes []image.Rectangle
	seen := make([]bool, w*h)
	for start := range edges {
		if !edges[start] || seen[start] {
			continue
		}
		seen[start] = true
		stack := []int{start}
		minX, minY, maxX, maxY := w, h, -1, -1
		external := false
		for len(stack) > 0 {
			i := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := i%w, i/w
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
			if !external && touchesOutside(x, y) {
				external = true
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					xx, yy := x+dx, y+dy
					if xx < 0 || yy < 0 || xx >= w || yy >= h {
						continue
					}
					j := yy*w + xx
					if edges[j] && !seen[j] {
						seen[j] = true
						stack = append(stack, j)
					}
				}
			}
		}
		if external {
			boxes = append(boxes, image.Rect(minX, minY, maxX+1, maxY+1))
		}
	}
	return boxes
}
