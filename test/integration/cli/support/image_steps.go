package support

import (
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/stereorect/internal/testutil"
	"github.com/MeKo-Tech/stereorect/internal/utils"
	"github.com/cucumber/godog"
)

const sceneCorrespondences = 30

// aStereoSceneIn renders a verged rig with matched spots into dir.
func (testCtx *TestContext) aStereoSceneIn(dir string) error {
	return testCtx.aStereoSceneOfSizeIn(320, 240, dir)
}

func (testCtx *TestContext) aStereoSceneOfSizeIn(width, height int, dir string) error {
	scene := testutil.NewStereoScene(testutil.VergedRig(width, height), sceneCorrespondences, 7)
	root := testCtx.Path(dir)
	if err := testutil.EnsureDir(root); err != nil {
		return err
	}

	data, err := scene.GeometryYAML()
	if err != nil {
		return fmt.Errorf("render geometry: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, "geometry.yaml"), data, 0o600); err != nil {
		return err
	}
	if err := utils.SaveImage(scene.LeftImage, filepath.Join(root, "left.png")); err != nil {
		return err
	}
	if err := utils.SaveImage(scene.RightImage, filepath.Join(root, "right.png")); err != nil {
		return err
	}
	testCtx.Scenes[dir] = scene
	return nil
}

// cameraDirectoriesWithFrames copies the views of a scene into two camera
// directories as frame_000.png, frame_001.png, ...
func (testCtx *TestContext) cameraDirectoriesWithFrames(leftDir, rightDir string, n int, sceneDir string) error {
	scene, ok := testCtx.Scenes[sceneDir]
	if !ok {
		return fmt.Errorf("no stereo scene in %q", sceneDir)
	}
	for i := range n {
		name := fmt.Sprintf("frame_%03d.png", i)
		if err := utils.SaveImage(scene.LeftImage, filepath.Join(testCtx.Path(leftDir), name)); err != nil {
			return err
		}
		if err := utils.SaveImage(scene.RightImage, filepath.Join(testCtx.Path(rightDir), name)); err != nil {
			return err
		}
	}
	return nil
}

// aBlankImageOfSize writes a black PNG.
func (testCtx *TestContext) aBlankImageOfSize(path string, width, height int) error {
	return utils.SaveImage(image.NewGray(image.Rect(0, 0, width, height)), testCtx.Path(path))
}

// aFileContaining writes a doc string to a scenario file.
func (testCtx *TestContext) aFileContaining(path string, content *godog.DocString) error {
	full := testCtx.Path(path)
	if err := testutil.EnsureDir(filepath.Dir(full)); err != nil {
		return err
	}
	return os.WriteFile(full, []byte(testCtx.substituteVariables(content.Content)), 0o600)
}

// theImageShouldBeOfSize decodes an image file and checks its dimensions.
func (testCtx *TestContext) theImageShouldBeOfSize(path string, width, height int) error {
	img, meta, err := utils.LoadImage(testCtx.Path(testCtx.substituteVariables(path)))
	if err != nil {
		return err
	}
	if got := img.Bounds().Size(); got != image.Pt(width, height) {
		return fmt.Errorf("image %s is %dx%d, want %dx%d", meta.Path, got.X, got.Y, width, height)
	}
	return nil
}

// theDirectoryShouldContainFiles counts the entries of a directory.
func (testCtx *TestContext) theDirectoryShouldContainFiles(dir string, n int) error {
	entries, err := os.ReadDir(testCtx.Path(testCtx.substituteVariables(dir)))
	if err != nil {
		return err
	}
	if len(entries) != n {
		return fmt.Errorf("directory %s has %d entries, want %d", dir, len(entries), n)
	}
	return nil
}

// RegisterImageSteps registers scene and image step definitions.
func (testCtx *TestContext) RegisterImageSteps(sc *godog.ScenarioContext) {
	sc.Step(`^a stereo scene in "([^"]*)"$`, testCtx.aStereoSceneIn)
	sc.Step(`^a stereo scene of size (\d+)x(\d+) in "([^"]*)"$`, testCtx.aStereoSceneOfSizeIn)
	sc.Step(`^camera directories "([^"]*)" and "([^"]*)" with (\d+) frames of "([^"]*)"$`, testCtx.cameraDirectoriesWithFrames)
	sc.Step(`^a blank image "([^"]*)" of size (\d+)x(\d+)$`, testCtx.aBlankImageOfSize)
	sc.Step(`^a file "([^"]*)" containing:$`, testCtx.aFileContaining)
	sc.Step(`^the image "([^"]*)" should be (\d+)x(\d+)$`, testCtx.theImageShouldBeOfSize)
	sc.Step(`^the directory "([^"]*)" should contain (\d+) files?$`, testCtx.theDirectoryShouldContainFiles)
}
