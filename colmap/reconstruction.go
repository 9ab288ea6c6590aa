package colmap

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Reconstruction is the camera/pose half of a sparse COLMAP model.
type Reconstruction struct {
	Cameras map[int32]Camera
	Images  map[int32]Image
}

type reconstructionAttempt struct {
	camerasFile string
	imagesFile  string
	intrinsics  func(string) (map[int32]Camera, error)
	extrinsics  func(string) (map[int32]Image, error)
}

// ReadReconstruction loads the cameras and images files from a model
// directory. The binary dump is the primary COLMAP output and is tried
// first; the text dump is the fallback. The attempts escalate only when
// every format fails, and a missing directory surfaces as
// ErrNoReconstruction.
func ReadReconstruction(dir string) (*Reconstruction, error) {
	attempts := []reconstructionAttempt{
		{"cameras.bin", "images.bin", ReadIntrinsicsBinary, ReadExtrinsicsBinary},
		{"cameras.txt", "images.txt", ReadIntrinsicsText, ReadExtrinsicsText},
	}
	var attemptErrs error
	anyPresent := false
	for _, attempt := range attempts {
		camerasPath := filepath.Join(dir, attempt.camerasFile)
		imagesPath := filepath.Join(dir, attempt.imagesFile)
		if !fileExists(camerasPath) || !fileExists(imagesPath) {
			continue
		}
		anyPresent = true
		cameras, err := attempt.intrinsics(camerasPath)
		if err != nil {
			attemptErrs = multierr.Combine(attemptErrs, errors.Wrap(err, attempt.camerasFile))
			continue
		}
		images, err := attempt.extrinsics(imagesPath)
		if err != nil {
			attemptErrs = multierr.Combine(attemptErrs, errors.Wrap(err, attempt.imagesFile))
			continue
		}
		return &Reconstruction{Cameras: cameras, Images: images}, nil
	}
	if !anyPresent {
		return nil, errors.Wrapf(ErrNoReconstruction, "in %q", dir)
	}
	return nil, errors.Wrapf(multierr.Combine(ErrNoReconstruction, attemptErrs), "in %q", dir)
}

// ReadPoints3D loads the triangulated sparse points named base.bin or
// base.txt from a model directory, binary first with text fallback.
func ReadPoints3D(dir, base string) ([]Point3D, error) {
	binPath := filepath.Join(dir, base+".bin")
	txtPath := filepath.Join(dir, base+".txt")
	if fileExists(binPath) {
		points, err := ReadPoints3DBinary(binPath)
		if err == nil {
			return points, nil
		}
		if !fileExists(txtPath) {
			return nil, err
		}
	}
	if fileExists(txtPath) {
		return ReadPoints3DText(txtPath)
	}
	return nil, errors.Wrapf(ErrNoReconstruction, "no %s file in %q", base, dir)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
