// Package main - template.go
//
// Screen tags and the reference template library.
//
// The library is built once at startup from a directory tree where each
// subdirectory is one logical screen tag holding one or more reference
// images for that screen:
//
//	templates/
//	├─ battle_selection/      hourglass.png, expansions.png
//	├─ expansion_selection/   close_x.png
//	├─ battle_setup/          auto.png, battle.png
//	├─ battle_in_progress/    opponent.png, put_basic.png, auto_off.png
//	├─ victory/               tap_to_proceed.png
//	├─ defeat/                defeat.png, next.png
//	├─ defeat_popup/          back.png
//	├─ reward/                tap_to_proceed.png, next.png
//	├─ popup/                 ok.png
//	└─ expansions/            one image per selectable expansion id (GA.png, ...)
//
// Templates are immutable after loading and shared for the process lifetime.
package main

import (
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScreenTag identifies a logical screen of the battle flow
type ScreenTag int

const (
	TagUnknown ScreenTag = iota
	TagBattleSelection
	TagExpansionSelection
	TagBattleSetup
	TagBattleInProgress
	TagVictory
	TagDefeat
	TagDefeatPopup
	TagReward
	TagPopup
)

// String returns the human-readable tag name
func (t ScreenTag) String() string {
	switch t {
	case TagBattleSelection:
		return "battle_selection"
	case TagExpansionSelection:
		return "expansion_selection"
	case TagBattleSetup:
		return "battle_setup"
	case TagBattleInProgress:
		return "battle_in_progress"
	case TagVictory:
		return "victory"
	case TagDefeat:
		return "defeat"
	case TagDefeatPopup:
		return "defeat_popup"
	case TagReward:
		return "reward"
	case TagPopup:
		return "popup"
	default:
		return "unknown"
	}
}

// allScreenTags lists every tag the classifier scans, in detection priority
// order: overlays first (they appear on top of other screens), then the most
// specific full screens.
var allScreenTags = []ScreenTag{
	TagPopup,
	TagDefeatPopup,
	TagDefeat,
	TagVictory,
	TagReward,
	TagExpansionSelection,
	TagBattleSelection,
	TagBattleInProgress,
	TagBattleSetup,
}

// parseScreenTag maps a template directory name to its tag
func parseScreenTag(name string) (ScreenTag, bool) {
	for _, t := range allScreenTags {
		if t.String() == name {
			return t, true
		}
	}
	return TagUnknown, false
}

// Template is a named reference image for one logical screen.
//
// Region, when set, restricts the search to that area of the frame; nil
// means full-frame search. Coordinates are in canonical frame space.
type Template struct {
	Name   string
	Tag    ScreenTag
	Image  *image.RGBA
	Region *Bounds
}

// TemplateLibrary maps screen tags to their candidate templates and holds
// the per-expansion selection images.
type TemplateLibrary struct {
	byTag      map[ScreenTag][]Template
	expansions map[string]Template
}

// expansionsDir is the subdirectory holding per-expansion images; it is not
// a screen tag of its own.
const expansionsDir = "expansions"

// LoadTemplateLibrary builds the library from the template directory tree.
// Unrecognized subdirectories are skipped with a warning; tags with no
// templates are reported so a misconfigured tree fails loudly at startup
// instead of silently never matching.
func LoadTemplateLibrary(root string) (*TemplateLibrary, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read template root %s: %w", root, err)
	}

	lib := &TemplateLibrary{
		byTag:      make(map[ScreenTag][]Template),
		expansions: make(map[string]Template),
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())

		if entry.Name() == expansionsDir {
			if err := lib.loadExpansions(dir); err != nil {
				return nil, err
			}
			continue
		}

		tag, ok := parseScreenTag(entry.Name())
		if !ok {
			LogWarn("Skipping unrecognized template directory %s", dir)
			continue
		}

		templates, err := loadTemplateDir(dir, tag)
		if err != nil {
			return nil, err
		}
		lib.byTag[tag] = templates
	}

	for _, tag := range allScreenTags {
		if len(lib.byTag[tag]) == 0 {
			LogWarn("No templates for screen %s - it will never be detected", tag)
		}
	}

	LogInfo("Template library loaded: %d screens, %d expansion images",
		len(lib.byTag), len(lib.expansions))
	return lib, nil
}

func loadTemplateDir(dir string, tag ScreenTag) ([]Template, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read template dir %s: %w", dir, err)
	}

	var templates []Template
	for _, f := range files {
		if f.IsDir() || !isImageFile(f.Name()) {
			continue
		}
		path := filepath.Join(dir, f.Name())
		img, err := loadImage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load template %s: %w", path, err)
		}
		templates = append(templates, Template{
			Name:  strings.TrimSuffix(f.Name(), filepath.Ext(f.Name())),
			Tag:   tag,
			Image: toRGBA(img),
		})
	}

	// Deterministic candidate order regardless of directory listing order
	sort.Slice(templates, func(i, j int) bool {
		return templates[i].Name < templates[j].Name
	})
	return templates, nil
}

func (lib *TemplateLibrary) loadExpansions(dir string) error {
	files, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read expansion dir %s: %w", dir, err)
	}
	for _, f := range files {
		if f.IsDir() || !isImageFile(f.Name()) {
			continue
		}
		path := filepath.Join(dir, f.Name())
		img, err := loadImage(path)
		if err != nil {
			return fmt.Errorf("failed to load expansion image %s: %w", path, err)
		}
		id := strings.TrimSuffix(f.Name(), filepath.Ext(f.Name()))
		lib.expansions[id] = Template{
			Name:  id,
			Tag:   TagExpansionSelection,
			Image: toRGBA(img),
		}
	}
	return nil
}

// Candidates returns the templates for a tag (nil when none are loaded)
func (lib *TemplateLibrary) Candidates(tag ScreenTag) []Template {
	return lib.byTag[tag]
}

// Candidate returns a single named template for a tag
func (lib *TemplateLibrary) Candidate(tag ScreenTag, name string) (Template, bool) {
	for _, t := range lib.byTag[tag] {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}

// Expansion returns the selection image for an expansion id
func (lib *TemplateLibrary) Expansion(id string) (Template, bool) {
	t, ok := lib.expansions[id]
	return t, ok
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

func loadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// savePNG writes an image to disk (used by the capture command)
func savePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return png.Encode(file, img)
}
