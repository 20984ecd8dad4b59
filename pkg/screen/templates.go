package screen

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/emulab-dev/emuflow/pkg/core"
)

// manifest is the on-disk template description (templates.yaml) living next
// to the reference patch PNGs.
type manifest struct {
	States []manifestState `yaml:"states"`
}

type manifestState struct {
	State   string           `yaml:"state"`
	Anchors []manifestAnchor `yaml:"anchors"`
}

type manifestAnchor struct {
	Patch     string  `yaml:"patch"` // PNG filename relative to the template dir
	X         int     `yaml:"x"`
	Y         int     `yaml:"y"`
	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	Threshold float64 `yaml:"threshold"`
}

// LoadTemplates builds a RegionClassifier from a template directory holding
// templates.yaml plus the patch images it references. Manifest order
// becomes match order.
func LoadTemplates(dir string) (*RegionClassifier, error) {
	data, err := os.ReadFile(filepath.Join(dir, "templates.yaml"))
	if err != nil {
		return nil, fmt.Errorf("reading template manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing template manifest: %w", err)
	}

	c := NewRegionClassifier()
	for _, ms := range m.States {
		if ms.State == "" {
			return nil, fmt.Errorf("template manifest: state with empty name")
		}
		var anchors []Anchor
		for _, ma := range ms.Anchors {
			patch, err := loadPatch(filepath.Join(dir, ma.Patch))
			if err != nil {
				return nil, fmt.Errorf("state %s: %w", ms.State, err)
			}
			w, h := ma.Width, ma.Height
			if w == 0 {
				w = patch.Bounds().Dx()
			}
			if h == 0 {
				h = patch.Bounds().Dy()
			}
			anchors = append(anchors, Anchor{
				Rect:      image.Rect(ma.X, ma.Y, ma.X+w, ma.Y+h),
				Patch:     patch,
				Threshold: ma.Threshold,
			})
		}
		if len(anchors) == 0 {
			return nil, fmt.Errorf("state %s has no anchors", ms.State)
		}
		c.Register(core.UIState(ms.State), anchors...)
	}
	return c, nil
}

func loadPatch(path string) (image.Image, error) {
	f, err := os.Open(path) //#nosec G304 -- operator-provided template dir
	if err != nil {
		return nil, fmt.Errorf("opening patch: %w", err)
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decoding patch %s: %w", filepath.Base(path), err)
	}
	return img, nil
}
