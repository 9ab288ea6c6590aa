package scene

import (
	"github.com/pkg/errors"

	"github.com/RR-2000/4DGaussians/camera"
	"github.com/RR-2000/4DGaussians/imgutil"
)

// Dataset is an ordered, random-access view over a camera split. Records
// whose pixels were not loaded up front are materialized on access from
// their image path; the shared record is never mutated, so a Dataset is
// safe to read from multiple goroutines.
type Dataset struct {
	records []*camera.Record
}

// NewDataset wraps a split in order.
func NewDataset(records []*camera.Record) *Dataset {
	return &Dataset{records: records}
}

func (d *Dataset) Len() int {
	return len(d.records)
}

// At returns a copy of the i-th record with its image present, decoding
// from ImagePath when the record was loaded without pixels.
func (d *Dataset) At(i int) (*camera.Record, error) {
	if i < 0 || i >= len(d.records) {
		return nil, errors.Errorf("index %d out of range [0, %d)", i, len(d.records))
	}
	rec := *d.records[i]
	if rec.Image == nil && rec.ImagePath != "" {
		img, err := imgutil.Load(rec.ImagePath)
		if err != nil {
			return nil, errors.Wrapf(err, "materializing record %d", i)
		}
		rec.Image = img
	}
	return &rec, nil
}

// Times returns the distinct timestamps of the split in record order.
func (d *Dataset) Times() []float64 {
	seen := make(map[float64]struct{}, len(d.records))
	var out []float64
	for _, rec := range d.records {
		if _, ok := seen[rec.Time]; ok {
			continue
		}
		seen[rec.Time] = struct{}{}
		out = append(out, rec.Time)
	}
	return out
}
