// Package main - classifier.go
//
// Screen classification: which logical screen is the device showing?
//
// The classifier matches every screen's templates against the frame and takes
// the single highest score across all screens. A frame classifies as a screen
// only when that best score reaches the matching threshold AND no other
// screen scores within the ambiguity epsilon of it; a near-tie between two
// screens means the frame is not trustworthy evidence for either, and the
// result is Unknown rather than a guess the state machine would act on.
package main

import (
	"fmt"
	"image"
)

// Classification is the outcome of classifying one frame
type Classification struct {
	// Tag is the detected screen, or TagUnknown
	Tag ScreenTag
	// Best is the winning match (meaningful when Tag != TagUnknown)
	Best MatchResult
	// Ambiguous is set when a near-tie between screens forced Unknown
	Ambiguous bool
	// Runner is the second-best screen's result on an ambiguous frame
	Runner MatchResult
}

// ScreenClassifier maps frames to screen tags using the template library.
type ScreenClassifier struct {
	matcher *TemplateMatcher
	library *TemplateLibrary
	epsilon float64
}

// NewScreenClassifier creates a classifier over the given library
func NewScreenClassifier(matcher *TemplateMatcher, library *TemplateLibrary, epsilon float64) *ScreenClassifier {
	return &ScreenClassifier{
		matcher: matcher,
		library: library,
		epsilon: epsilon,
	}
}

// Classify determines which screen the frame shows. An unusable frame
// returns ErrInvalidFrame; a near-tie between two screens returns the
// TagUnknown classification together with ErrAmbiguousMatch. A frame where
// nothing scores high enough is plain TagUnknown with no error.
func (c *ScreenClassifier) Classify(frame *image.RGBA) (Classification, error) {
	if err := ValidateFrame(frame); err != nil {
		return Classification{}, err
	}

	var best, runner MatchResult
	for _, tag := range allScreenTags {
		candidates := c.library.Candidates(tag)
		if len(candidates) == 0 {
			continue
		}
		r, err := c.matcher.BestOf(frame, candidates)
		if err != nil {
			return Classification{}, err
		}
		LogDebug("Screen %s best template %q scored %.3f", tag, r.Template, r.Score)

		switch {
		case r.Score > best.Score:
			runner = best
			best = r
		case r.Score > runner.Score:
			runner = r
		}
	}

	if !best.Found {
		LogDebug("No screen above threshold (best %s at %.3f)", best.Tag, best.Score)
		return Classification{Tag: TagUnknown, Best: best}, nil
	}

	// A runner-up from a different screen scoring within epsilon makes the
	// frame ambiguous. Multiple templates of the same screen tying is fine.
	if runner.Tag != best.Tag && best.Score-runner.Score < c.epsilon {
		LogWarn("Ambiguous frame: %s %.3f vs %s %.3f (epsilon %.3f)",
			best.Tag, best.Score, runner.Tag, runner.Score, c.epsilon)
		return Classification{Tag: TagUnknown, Best: best, Ambiguous: true, Runner: runner},
			fmt.Errorf("%w: %s %.3f vs %s %.3f", ErrAmbiguousMatch,
				best.Tag, best.Score, runner.Tag, runner.Score)
	}

	LogDebug("Classified screen %s (template %q, score %.3f)", best.Tag, best.Template, best.Score)
	return Classification{Tag: best.Tag, Best: best}, nil
}
