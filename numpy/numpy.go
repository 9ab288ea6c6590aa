// Package numpy decodes the npy/npz containers some captures ship their
// metadata in (pose bounds, initial point seeds). Only 2-D float arrays are
// supported; that is all the capture formats use.
package numpy

import (
	"archive/zip"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sbinet/npyio"
	"go.viam.com/utils"
)

// ReadMatrix decodes a 2-D float npy stream into rows.
func ReadMatrix(r io.Reader) ([][]float64, error) {
	nr, err := npyio.NewReader(r)
	if err != nil {
		return nil, err
	}
	shape := nr.Header.Descr.Shape
	if len(shape) != 2 {
		return nil, errors.Errorf("want a 2-D array, got shape %v", shape)
	}
	flat := make([]float64, shape[0]*shape[1])
	if strings.Contains(nr.Header.Descr.Type, "f4") {
		flat32 := make([]float32, len(flat))
		if err := nr.Read(&flat32); err != nil {
			return nil, err
		}
		for i, v := range flat32 {
			flat[i] = float64(v)
		}
	} else if err := nr.Read(&flat); err != nil {
		return nil, err
	}
	rows := make([][]float64, shape[0])
	for i := range rows {
		rows[i] = flat[i*shape[1] : (i+1)*shape[1]]
	}
	return rows, nil
}

// ReadMatrixFile decodes a 2-D float npy file into rows.
func ReadMatrixFile(path string) ([][]float64, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer utils.UncheckedErrorFunc(f.Close)
	return ReadMatrix(f)
}

// ReadArchiveMatrix decodes one named member of an npz archive into rows.
func ReadArchiveMatrix(path, member string) ([][]float64, error) {
	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q", path)
	}
	defer utils.UncheckedErrorFunc(archive.Close)

	want := member + ".npy"
	for _, zf := range archive.File {
		if zf.Name != want && !strings.HasSuffix(zf.Name, "/"+want) {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, err
		}
		defer utils.UncheckedErrorFunc(rc.Close)
		rows, err := ReadMatrix(rc)
		if err != nil {
			return nil, errors.Wrapf(err, "member %q of %q", want, path)
		}
		return rows, nil
	}
	return nil, errors.Errorf("%q has no member %q", path, want)
}
