package browser

import (
	"math"
	"math/rand"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Point is a pointer position in page coordinates.
type Point struct {
	X float64
	Y float64
}

// Jitter returns d scaled by a random factor in [1-frac, 1+frac].
// Delays are never constant so the pacing has no fixed-interval fingerprint.
func Jitter(rng *rand.Rand, d time.Duration, frac float64) time.Duration {
	if d <= 0 || frac <= 0 {
		return d
	}
	scale := 1 + (rng.Float64()*2-1)*frac
	return time.Duration(float64(d) * scale)
}

// JitterBetween returns a random duration in [min, max].
func JitterBetween(rng *rand.Rand, min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rng.Int63n(int64(max-min)))
}

// bezierPoint evaluates a cubic Bezier curve at t.
func bezierPoint(start, c1, c2, end Point, t float64) Point {
	u := 1 - t
	return Point{
		X: u*u*u*start.X + 3*u*u*t*c1.X + 3*u*t*t*c2.X + t*t*t*end.X,
		Y: u*u*u*start.Y + 3*u*u*t*c1.Y + 3*u*t*t*c2.Y + t*t*t*end.Y,
	}
}

// controlPoints picks randomized control points proportional to the
// travel distance, bowing the path off the straight line.
func controlPoints(rng *rand.Rand, start, end Point) (Point, Point) {
	dist := math.Hypot(end.X-start.X, end.Y-start.Y)
	c1 := Point{
		X: start.X + (0.2+rng.Float64()*0.6)*dist,
		Y: start.Y + (rng.Float64()-0.5)*dist,
	}
	c2 := Point{
		X: end.X - (0.2+rng.Float64()*0.6)*dist,
		Y: end.Y + (rng.Float64()-0.5)*dist,
	}
	return c1, c2
}

// pathSteps scales the step count with distance, with a floor so short
// hops still curve instead of teleporting.
func pathSteps(dist float64) int {
	steps := int(50 * dist / 500)
	if steps < 25 {
		steps = 25
	}
	return steps
}

// PointerPath returns the sequence of positions for a humanized pointer
// move from start to end. Exported separately from the playwright
// plumbing so the path shape is testable.
func PointerPath(rng *rand.Rand, start, end Point) []Point {
	dist := math.Hypot(end.X-start.X, end.Y-start.Y)
	if dist < 5 {
		return []Point{end}
	}

	c1, c2 := controlPoints(rng, start, end)
	steps := pathSteps(dist)

	path := make([]Point, 0, steps+1)
	for i := 0; i <= steps; i++ {
		t := float64(i) / float64(steps)
		path = append(path, bezierPoint(start, c1, c2, end, t))
	}
	return path
}

// Humanizer drives a playwright page through human-shaped interactions:
// curved pointer motion with non-uniform velocity, randomized scroll
// steps, jittered dwells.
type Humanizer struct {
	page playwright.Page
	rng  *rand.Rand
	pos  Point

	ScrollStepMin int
	ScrollStepMax int
	StepDelayMin  time.Duration
	StepDelayMax  time.Duration
}

func NewHumanizer(page playwright.Page, rng *rand.Rand) *Humanizer {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Humanizer{
		page:          page,
		rng:           rng,
		ScrollStepMin: 500,
		ScrollStepMax: 1400,
		StepDelayMin:  200 * time.Millisecond,
		StepDelayMax:  450 * time.Millisecond,
	}
}

// MoveTo walks the pointer along a randomized bezier path. Duration is
// split unevenly across steps so the velocity is non-uniform.
func (h *Humanizer) MoveTo(x, y float64) error {
	path := PointerPath(h.rng, h.pos, Point{X: x, Y: y})
	total := JitterBetween(h.rng, 500*time.Millisecond, 1500*time.Millisecond)
	perStep := total / time.Duration(len(path))

	for _, p := range path {
		if err := h.page.Mouse().Move(p.X, p.Y); err != nil {
			return err
		}
		h.pos = p
		time.Sleep(Jitter(h.rng, perStep, 0.2))
	}
	return nil
}

// Click moves to the coordinates and presses with a human-length
// down/up gap.
func (h *Humanizer) Click(x, y float64) error {
	if err := h.MoveTo(x, y); err != nil {
		return err
	}
	if err := h.page.Mouse().Down(); err != nil {
		return err
	}
	time.Sleep(JitterBetween(h.rng, 50*time.Millisecond, 150*time.Millisecond))
	return h.page.Mouse().Up()
}

// ScrollBy issues one wheel step of randomized size and returns the
// delta it used.
func (h *Humanizer) ScrollBy() (int, error) {
	delta := h.ScrollStepMin + h.rng.Intn(h.ScrollStepMax-h.ScrollStepMin+1)
	if err := h.page.Mouse().Wheel(0, float64(delta)); err != nil {
		return 0, err
	}
	time.Sleep(JitterBetween(h.rng, h.StepDelayMin, h.StepDelayMax))
	return delta, nil
}

// Dwell idles like a reader would between actions.
func (h *Humanizer) Dwell(min, max time.Duration) {
	time.Sleep(JitterBetween(h.rng, min, max))
}
