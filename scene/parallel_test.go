package scene

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/RR-2000/4DGaussians/camera"
)

func validRecord(uid int) *camera.Record {
	return &camera.Record{
		UID:    uid,
		R:      mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}),
		FovX:   1,
		FovY:   1,
		Width:  4,
		Height: 4,
	}
}

func TestLoadRecordsPreservesOrder(t *testing.T) {
	tasks := make([]recordTask, 50)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (*camera.Record, error) {
			return validRecord(i), nil
		}
	}
	records, err := loadRecords(context.Background(), 4, tasks)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, records, test.ShouldHaveLength, 50)
	for i, rec := range records {
		test.That(t, rec.UID, test.ShouldEqual, i)
	}
}

func TestLoadRecordsFailsFast(t *testing.T) {
	boom := errors.New("decode failed")
	tasks := make([]recordTask, 20)
	for i := range tasks {
		i := i
		tasks[i] = func(ctx context.Context) (*camera.Record, error) {
			if i == 7 {
				return nil, boom
			}
			return validRecord(i), nil
		}
	}
	_, err := loadRecords(context.Background(), 2, tasks)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, errors.Is(err, boom), test.ShouldBeTrue)
}

func TestLoadRecordsRejectsInvalid(t *testing.T) {
	bad := validRecord(0)
	bad.Time = 2.0 // out of the normalized timeline
	tasks := []recordTask{
		func(ctx context.Context) (*camera.Record, error) { return bad, nil },
	}
	_, err := loadRecords(context.Background(), 1, tasks)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestLoadRecordsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tasks := []recordTask{
		func(ctx context.Context) (*camera.Record, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return validRecord(0), nil
		},
	}
	_, err := loadRecords(ctx, 1, tasks)
	test.That(t, err, test.ShouldNotBeNil)
}
