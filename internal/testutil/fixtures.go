package testutil

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

// StereoScene is a rig together with matched points and images showing a
// spot at every point.
type StereoScene struct {
	Rig         StereoRig
	Left, Right []r2.Point
	LeftImage   *image.Gray
	RightImage  *image.Gray
}

// NewStereoScene samples n correspondences from rig and renders both views.
func NewStereoScene(rig StereoRig, n int, seed uint64) StereoScene {
	left, right := rig.Correspondences(n, seed)
	return StereoScene{
		Rig:        rig,
		Left:       left,
		Right:      right,
		LeftImage:  RenderBlobs(rig.Width, rig.Height, left, 1.5),
		RightImage: RenderBlobs(rig.Width, rig.Height, right, 1.5),
	}
}

type fixturePair struct {
	Left  [2]float64 `yaml:"left,flow"`
	Right [2]float64 `yaml:"right,flow"`
}

type fixtureGeometry struct {
	Width       int           `yaml:"width"`
	Height      int           `yaml:"height"`
	Fundamental []float64     `yaml:"fundamental,flow"`
	Pairs       []fixturePair `yaml:"pairs"`
}

// GeometryYAML renders the scene as a geometry document.
func (s StereoScene) GeometryYAML() ([]byte, error) {
	f := s.Rig.Fundamental()
	doc := fixtureGeometry{
		Width:       s.Rig.Width,
		Height:      s.Rig.Height,
		Fundamental: f.Slice(),
	}
	for i := range s.Left {
		doc.Pairs = append(doc.Pairs, fixturePair{
			Left:  [2]float64{s.Left[i].X, s.Left[i].Y},
			Right: [2]float64{s.Right[i].X, s.Right[i].Y},
		})
	}
	return yaml.Marshal(doc)
}

// ScenePaths are the files written by WriteScene.
type ScenePaths struct {
	Geometry string
	Left     string
	Right    string
}

// WriteScene writes geometry.yaml, left.png and right.png into dir.
func WriteScene(t *testing.T, dir string, s StereoScene) ScenePaths {
	t.Helper()

	require.NoError(t, EnsureDir(dir))
	p := ScenePaths{
		Geometry: filepath.Join(dir, "geometry.yaml"),
		Left:     filepath.Join(dir, "left.png"),
		Right:    filepath.Join(dir, "right.png"),
	}
	data, err := s.GeometryYAML()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p.Geometry, data, 0o600))
	SaveImage(t, s.LeftImage, p.Left)
	SaveImage(t, s.RightImage, p.Right)
	return p
}
