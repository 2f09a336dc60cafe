// Package main - matcher.go
//
// Fuzzy template matching over captured frames.
//
// Matching slides a reference template across the frame (or a restricted
// region of it) and scores each placement by the fraction of sampled pixels
// whose color lies within a per-channel tolerance of the template. The
// sliding scan runs in two passes: a coarse pass on a stride grid to find the
// most promising placement cheaply, then a fine pass around it. This keeps a
// full-frame search fast enough to run every poll without native image
// libraries.
//
// Scores are in [0,1]. A placement counts as a match only when its score
// reaches the configured threshold; callers never see sub-threshold results
// as found.
package main

import (
	"image"
)

const (
	// Per-channel color tolerance when comparing sampled pixels
	colorTolerance = 32
	// Pixel sampling step inside the template window
	sampleStep = 4
	// Grid stride of the coarse placement scan
	coarseStride = 8
	// Abort a placement early once its score cannot reach this fraction
	// of the best score seen so far
	earlyOutRatio = 0.5
)

// MatchResult describes the outcome of matching one template against a frame
type MatchResult struct {
	Template string
	Tag      ScreenTag
	Score    float64
	Bounds   Bounds
	Found    bool
}

// TemplateMatcher scores templates against frames with a fixed threshold.
type TemplateMatcher struct {
	threshold float64
}

// NewTemplateMatcher creates a matcher with the given confidence threshold
func NewTemplateMatcher(threshold float64) *TemplateMatcher {
	return &TemplateMatcher{threshold: threshold}
}

// Threshold returns the configured confidence threshold
func (m *TemplateMatcher) Threshold() float64 {
	return m.threshold
}

// Match scores one template against the frame and returns the best placement.
// Found is true only when the score reaches the threshold. An unusable frame
// returns ErrInvalidFrame; an unusable template scores zero.
func (m *TemplateMatcher) Match(frame *image.RGBA, tpl Template) (MatchResult, error) {
	if err := ValidateFrame(frame); err != nil {
		return MatchResult{}, err
	}

	result := MatchResult{Template: tpl.Name, Tag: tpl.Tag}
	if tpl.Image == nil {
		return result, nil
	}

	tb := tpl.Image.Bounds()
	tw, th := tb.Dx(), tb.Dy()
	if tw <= 0 || th <= 0 {
		return result, nil
	}

	search := Bounds{X: 0, Y: 0, W: frame.Bounds().Dx(), H: frame.Bounds().Dy()}
	if tpl.Region != nil {
		search = tpl.Region.Intersect(frame.Bounds())
	}
	// Template must fit inside the search area
	if search.Empty() || tw > search.W || th > search.H {
		return result, nil
	}

	bestX, bestY, bestScore := m.scan(frame, tpl.Image, search, coarseStride, 0)
	if bestScore > 0 {
		// Refine around the coarse winner
		fine := Bounds{
			X: bestX - coarseStride, Y: bestY - coarseStride,
			W: tw + 2*coarseStride, H: th + 2*coarseStride,
		}.Intersect(frame.Bounds())
		if fx, fy, fs := m.scan(frame, tpl.Image, fine, 1, bestScore); fs > bestScore {
			bestX, bestY, bestScore = fx, fy, fs
		}
	}

	result.Score = bestScore
	result.Bounds = Bounds{X: bestX, Y: bestY, W: tw, H: th}
	result.Found = bestScore >= m.threshold
	return result, nil
}

// BestOf matches every candidate and returns the highest-scoring result.
// With no candidates it returns a zero (not found) result.
func (m *TemplateMatcher) BestOf(frame *image.RGBA, candidates []Template) (MatchResult, error) {
	if err := ValidateFrame(frame); err != nil {
		return MatchResult{}, err
	}

	var best MatchResult
	for _, tpl := range candidates {
		r, err := m.Match(frame, tpl)
		if err != nil {
			return MatchResult{}, err
		}
		if r.Score > best.Score || best.Template == "" {
			best = r
		}
	}
	return best, nil
}

// scan slides the template across the search area on a stride grid and
// returns the best placement and score. floor seeds the early-out so the
// fine pass skips placements that cannot beat the coarse result.
func (m *TemplateMatcher) scan(frame, tpl *image.RGBA, search Bounds, stride int, floor float64) (int, int, float64) {
	tb := tpl.Bounds()
	tw, th := tb.Dx(), tb.Dy()

	bestX, bestY := search.X, search.Y
	bestScore := floor

	maxX := search.X + search.W - tw
	maxY := search.Y + search.H - th
	for y := search.Y; y <= maxY; y += stride {
		for x := search.X; x <= maxX; x += stride {
			score := m.scoreAt(frame, tpl, x, y, bestScore)
			if score > bestScore {
				bestX, bestY, bestScore = x, y, score
			}
		}
	}
	if bestScore <= floor {
		return bestX, bestY, floor
	}
	return bestX, bestY, bestScore
}

// scoreAt computes the pixel-agreement score for one placement, bailing out
// once the placement can no longer reach earlyOutRatio of the current best.
func (m *TemplateMatcher) scoreAt(frame, tpl *image.RGBA, ox, oy int, currentBest float64) float64 {
	tb := tpl.Bounds()
	tw, th := tb.Dx(), tb.Dy()

	total := 0
	for ty := 0; ty < th; ty += sampleStep {
		for tx := 0; tx < tw; tx += sampleStep {
			total++
		}
	}
	if total == 0 {
		return 0
	}

	matched, seen := 0, 0
	cutoff := currentBest * earlyOutRatio

	for ty := 0; ty < th; ty += sampleStep {
		for tx := 0; tx < tw; tx += sampleStep {
			seen++
			fi := frame.PixOffset(ox+tx, oy+ty)
			ti := tpl.PixOffset(tb.Min.X+tx, tb.Min.Y+ty)
			if pixelClose(frame.Pix[fi:fi+3], tpl.Pix[ti:ti+3]) {
				matched++
			}
		}
		// Even if every remaining sample matched, can this placement still
		// beat the cutoff?
		if cutoff > 0 && float64(matched+total-seen)/float64(total) < cutoff {
			return float64(matched) / float64(total)
		}
	}
	return float64(matched) / float64(total)
}

func pixelClose(a, b []uint8) bool {
	return absDiff(a[0], b[0]) <= colorTolerance &&
		absDiff(a[1], b[1]) <= colorTolerance &&
		absDiff(a[2], b[2]) <= colorTolerance
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
