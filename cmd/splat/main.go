// Command splat inspects and converts 4D capture datasets: print a summary
// of any supported layout, export its normalized cameras and point cloud,
// or render a quick point-footprint preview along the video path.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/edaniels/golog"
	"github.com/fogleman/gg"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/RR-2000/4DGaussians/camera"
	"github.com/RR-2000/4DGaussians/geometry"
	"github.com/RR-2000/4DGaussians/pointcloud"
	"github.com/RR-2000/4DGaussians/scene"
)

func main() {
	logger := golog.NewDevelopmentLogger("splat")
	app := &cli.App{
		Name:  "splat",
		Usage: "inspect and convert 4D capture datasets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "type",
				Usage:    fmt.Sprintf("dataset type, one of %v", scene.DatasetTypes()),
				Required: true,
			},
			&cli.StringFlag{
				Name:     "path",
				Usage:    "dataset root directory",
				Required: true,
			},
			&cli.BoolFlag{Name: "eval", Usage: "hold out a test split"},
			&cli.BoolFlag{Name: "white-background", Usage: "composite RGBA frames onto white"},
			&cli.IntFlag{Name: "workers", Usage: "parallel image loads (0 = GOMAXPROCS)"},
			&cli.IntFlag{Name: "frames", Usage: "timeline length for frame-sequence captures"},
			&cli.IntFlag{Name: "downsample", Usage: "integer image downsample factor"},
		},
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "load a scene and print its summary",
				Action: func(c *cli.Context) error { return runInfo(c, logger) },
			},
			{
				Name:  "export",
				Usage: "write the normalized cameras and point cloud to a directory",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "output directory", Required: true},
				},
				Action: func(c *cli.Context) error { return runExport(c, logger) },
			},
			{
				Name:  "preview",
				Usage: "render point-footprint frames along the video camera path",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Usage: "output directory", Required: true},
					&cli.IntFlag{Name: "count", Value: 30, Usage: "number of preview frames"},
					&cli.Float64Flag{Name: "radius", Value: 1.0, Usage: "point footprint radius in pixels"},
				},
				Action: func(c *cli.Context) error { return runPreview(c, logger) },
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.Fatal(err)
	}
}

func loadScene(c *cli.Context, logger golog.Logger) (*scene.Info, error) {
	opts := scene.Options{
		Eval:            c.Bool("eval"),
		WhiteBackground: c.Bool("white-background"),
		Workers:         c.Int("workers"),
		Frames:          c.Int("frames"),
	}
	opts.Brics.NumFrames = c.Int("frames")
	opts.Brics.Downsample = c.Int("downsample")
	return scene.Load(c.Context, c.String("type"), c.String("path"), opts, logger)
}

func runInfo(c *cli.Context, logger golog.Logger) error {
	info, err := loadScene(c, logger)
	if err != nil {
		return err
	}
	points := 0
	if info.PointCloud != nil {
		points = info.PointCloud.Size()
	}
	fmt.Printf("train cameras:  %d\n", len(info.TrainCameras))
	fmt.Printf("test cameras:   %d\n", len(info.TestCameras))
	fmt.Printf("video cameras:  %d\n", len(info.VideoCameras))
	fmt.Printf("points:         %d\n", points)
	fmt.Printf("extent radius:  %g\n", info.Normalization.Radius)
	fmt.Printf("max time:       %g\n", info.MaxTime)
	fmt.Printf("point cloud at: %s\n", info.PLYPath)
	return nil
}

// cameraManifest is the on-disk form of one exported camera.
type cameraManifest struct {
	UID       int       `json:"uid"`
	ImageName string    `json:"image_name"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	FovX      float64   `json:"fov_x"`
	FovY      float64   `json:"fov_y"`
	Time      float64   `json:"time"`
	Rotation  []float64 `json:"rotation"`
	Position  []float64 `json:"position"`
}

func manifestOf(records []*camera.Record) []cameraManifest {
	out := make([]cameraManifest, len(records))
	for i, rec := range records {
		rot := make([]float64, 0, 9)
		for r := 0; r < 3; r++ {
			for col := 0; col < 3; col++ {
				rot = append(rot, rec.R.At(r, col))
			}
		}
		center := geometry.CameraCenter(rec.R, rec.T)
		out[i] = cameraManifest{
			UID:       rec.UID,
			ImageName: rec.ImageName,
			Width:     rec.Width,
			Height:    rec.Height,
			FovX:      rec.FovX,
			FovY:      rec.FovY,
			Time:      rec.Time,
			Rotation:  rot,
			Position:  []float64{center.X, center.Y, center.Z},
		}
	}
	return out
}

func runExport(c *cli.Context, logger golog.Logger) error {
	info, err := loadScene(c, logger)
	if err != nil {
		return err
	}
	outDir := c.String("out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	if info.PointCloud != nil {
		plyOut := filepath.Join(outDir, "points3D.ply")
		if err := pointcloud.WritePLY(plyOut, info.PointCloud.Positions, info.PointCloud.Colors); err != nil {
			return errors.Wrap(err, "exporting point cloud")
		}
		logger.Infow("wrote point cloud", "path", plyOut, "points", info.PointCloud.Size())
	}

	manifest := struct {
		Normalization geometry.Normalization `json:"normalization"`
		MaxTime       float64                `json:"max_time"`
		Train         []cameraManifest       `json:"train"`
		Test          []cameraManifest       `json:"test"`
	}{
		Normalization: info.Normalization,
		MaxTime:       info.MaxTime,
		Train:         manifestOf(info.TrainCameras),
		Test:          manifestOf(info.TestCameras),
	}
	buf, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	camerasOut := filepath.Join(outDir, "cameras.json")
	if err := os.WriteFile(camerasOut, buf, 0o644); err != nil {
		return err
	}
	logger.Infow("wrote camera manifest", "path", camerasOut,
		"train", len(manifest.Train), "test", len(manifest.Test))
	return nil
}

func runPreview(c *cli.Context, logger golog.Logger) error {
	info, err := loadScene(c, logger)
	if err != nil {
		return err
	}
	if info.PointCloud == nil || info.PointCloud.Size() == 0 {
		return errors.New("scene has no point cloud to preview")
	}
	outDir := c.String("out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	count := c.Int("count")
	if count > len(info.VideoCameras) {
		count = len(info.VideoCameras)
	}
	dot := c.Float64("radius")
	for i := 0; i < count; i++ {
		rec := info.VideoCameras[i*len(info.VideoCameras)/max(count, 1)]
		framePath := filepath.Join(outDir, fmt.Sprintf("%05d.png", i))
		if err := renderFootprints(info.PointCloud, rec, dot, framePath); err != nil {
			return errors.Wrapf(err, "rendering preview frame %d", i)
		}
	}
	logger.Infow("wrote preview frames", "path", outDir, "count", count)
	return nil
}

// renderFootprints splats each cloud point as a flat disc from one camera.
func renderFootprints(pcd *pointcloud.PointCloud, rec *camera.Record, dot float64, path string) error {
	const (
		znear = 0.01
		zfar  = 100.0
	)
	dc := gg.NewContext(rec.Width, rec.Height)
	dc.SetRGB(0, 0, 0)
	dc.Clear()

	full := geometry.ViewProjection(rec, znear, zfar)
	pixels := geometry.ProjectPoints(pcd.Positions, full, rec.Width, rec.Height)
	for i, pix := range pixels {
		if !pix.Valid {
			continue
		}
		col := pcd.Colors[i]
		dc.SetRGB(col.X, col.Y, col.Z)
		dc.DrawCircle(float64(pix.X), float64(pix.Y), dot)
		dc.Fill()
	}
	return dc.SavePNG(path)
}
