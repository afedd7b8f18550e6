package collector

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/yairfalse/tally/pkg/report"
)

type recordedCategory struct {
	category string
	status   report.Status
	rows     int
}

type fakeRecorder struct {
	spans   []string
	records []recordedCategory
}

func (f *fakeRecorder) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	f.spans = append(f.spans, name)
	return noop.NewTracerProvider().Tracer("test").Start(ctx, name)
}

func (f *fakeRecorder) RecordCategory(_ context.Context, category string, status report.Status, rows int, _ time.Duration) {
	f.records = append(f.records, recordedCategory{category: category, status: status, rows: rows})
}

func rowsOf(n int) ExtractFunc {
	return func(context.Context) ([]report.Row, error) {
		rows := make([]report.Row, n)
		for i := range rows {
			rows[i] = report.NewRow(report.Col("N", report.Int(int64(i))))
		}
		return rows, nil
	}
}

func newTestCollector(t *testing.T, progress io.Writer, rec Recorder, cats ...Category) *Collector {
	t.Helper()
	reg := NewRegistry()
	for _, c := range cats {
		require.NoError(t, reg.Register(c))
	}
	return New(reg, Options{
		Timeout:        time.Second,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Progress:       progress,
		Recorder:       rec,
	})
}

func TestNew_NilProgressIsDiscarded(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Category{Name: "EC2", Extract: rowsOf(1)}))
	c := New(reg, Options{Progress: nil})

	assert.NotPanics(t, func() {
		rep, err := c.Collect(context.Background(), []string{"EC2"})
		require.NoError(t, err)
		assert.Equal(t, report.StatusOK, rep.Tables[0].Status)
	})
}

func TestCollect_OneRowPerResource(t *testing.T) {
	var progress bytes.Buffer
	c := newTestCollector(t, &progress, nil, Category{Name: "EC2", Extract: rowsOf(2)})

	rep, err := c.Collect(context.Background(), []string{"EC2"})

	require.NoError(t, err)
	require.Len(t, rep.Tables, 1)
	assert.Equal(t, report.StatusOK, rep.Tables[0].Status)
	assert.Len(t, rep.Tables[0].Rows, 2)
	assert.Equal(t, "Fetching EC2 data...\n", progress.String())
	assert.False(t, rep.GeneratedAt.IsZero())
}

func TestCollect_EmptyCategoryGetsPlaceholder(t *testing.T) {
	c := newTestCollector(t, nil, nil, Category{Name: "S3", Extract: rowsOf(0)})

	rep, err := c.Collect(context.Background(), []string{"S3"})

	require.NoError(t, err)
	tbl := rep.Tables[0]
	assert.Equal(t, report.StatusEmpty, tbl.Status)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, report.NoResourcesMessage, tbl.Rows[0].Get(report.MessageColumn).String())
}

func TestCollect_UnimplementedCategory(t *testing.T) {
	c := newTestCollector(t, nil, nil)

	rep, err := c.Collect(context.Background(), []string{"kinesis"})

	require.NoError(t, err)
	tbl := rep.Tables[0]
	assert.Equal(t, "kinesis", tbl.Category)
	assert.Equal(t, report.StatusUnimplemented, tbl.Status)
	require.Len(t, tbl.Rows, 1)
	assert.Equal(t, "No custom logic implemented for kinesis", tbl.Rows[0].Get(report.ServiceColumn).String())
}

func TestCollect_ErrorBecomesRowAndRunContinues(t *testing.T) {
	denied := &smithy.GenericAPIError{Code: "AccessDenied", Message: "not authorized to perform rds:DescribeDBInstances", Fault: smithy.FaultClient}
	calls := 0
	rec := &fakeRecorder{}
	c := newTestCollector(t, nil, rec,
		Category{Name: "RDS", Extract: func(context.Context) ([]report.Row, error) {
			calls++
			return nil, denied
		}},
		Category{Name: "EC2", Extract: rowsOf(1)},
	)

	rep, err := c.Collect(context.Background(), []string{"RDS", "EC2"})

	require.NoError(t, err)
	require.Len(t, rep.Tables, 2)
	assert.Equal(t, 1, calls, "access denied is not retried")

	rds := rep.Tables[0]
	assert.Equal(t, report.StatusError, rds.Status)
	require.Len(t, rds.Rows, 1)
	assert.Contains(t, rds.Rows[0].Get(report.ErrorColumn).String(), "not authorized")
	assert.Equal(t, "AccessDenied", rds.Rows[0].Get(report.CodeColumn).String())

	assert.Equal(t, report.StatusOK, rep.Tables[1].Status)
	assert.Equal(t, []string{"collect RDS", "collect EC2"}, rec.spans)
	assert.Equal(t, []recordedCategory{
		{category: "RDS", status: report.StatusError, rows: 0},
		{category: "EC2", status: report.StatusOK, rows: 1},
	}, rec.records)
}

func TestCollect_RetriesThrottling(t *testing.T) {
	calls := 0
	c := newTestCollector(t, nil, nil, Category{Name: "IAM USER", Extract: func(context.Context) ([]report.Row, error) {
		calls++
		if calls < 3 {
			return nil, &smithy.GenericAPIError{Code: "Throttling", Message: "Rate exceeded"}
		}
		return rowsOf(1)(context.Background())
	}})

	rep, err := c.Collect(context.Background(), []string{"iam user"})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, "IAM USER", rep.Tables[0].Category)
	assert.Equal(t, report.StatusOK, rep.Tables[0].Status)
}

func TestCollect_RetriesAreBounded(t *testing.T) {
	calls := 0
	c := newTestCollector(t, nil, nil, Category{Name: "ACM", Extract: func(context.Context) ([]report.Row, error) {
		calls++
		return nil, &smithy.GenericAPIError{Code: "InternalFailure", Message: "oops", Fault: smithy.FaultServer}
	}})

	rep, err := c.Collect(context.Background(), []string{"ACM"})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, report.StatusError, rep.Tables[0].Status)
	assert.Contains(t, rep.Tables[0].Rows[0].Get(report.ErrorColumn).String(), "oops")
}

func TestCollect_AttemptTimeout(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.Register(Category{Name: "SLOW", Extract: func(ctx context.Context) ([]report.Row, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}))
	c := New(reg, Options{Timeout: 5 * time.Millisecond, MaxAttempts: 2, InitialBackoff: time.Millisecond})

	rep, err := c.Collect(context.Background(), []string{"SLOW"})

	require.NoError(t, err)
	assert.Equal(t, report.StatusError, rep.Tables[0].Status)
	assert.Contains(t, rep.Tables[0].Rows[0].Get(report.ErrorColumn).String(), "deadline exceeded")
}

func TestCollect_CancelledContextIsFatal(t *testing.T) {
	c := newTestCollector(t, nil, nil, Category{Name: "EC2", Extract: rowsOf(1)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Collect(ctx, []string{"EC2"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestCollect_PreservesRequestedOrder(t *testing.T) {
	c := newTestCollector(t, nil, nil,
		Category{Name: "EC2", Extract: rowsOf(1)},
		Category{Name: "S3", Extract: rowsOf(1)},
	)

	rep, err := c.Collect(context.Background(), []string{"S3", "EC2"})

	require.NoError(t, err)
	assert.Equal(t, "S3", rep.Tables[0].Category)
	assert.Equal(t, "EC2", rep.Tables[1].Category)
}

func TestCollect_MultiTableCategory(t *testing.T) {
	rec := &fakeRecorder{}
	c := newTestCollector(t, nil, rec, Category{Name: "ROUTE53", Tables: func(context.Context) ([]report.Table, error) {
		rows, _ := rowsOf(2)(context.Background())
		return []report.Table{
			{Category: "example.com.", Rows: rows},
			{Category: "empty.example.org."},
		}, nil
	}})

	rep, err := c.Collect(context.Background(), []string{"route53"})

	require.NoError(t, err)
	require.Len(t, rep.Tables, 2)

	first, second := rep.Tables[0], rep.Tables[1]
	assert.Equal(t, "example.com.", first.Category)
	assert.Equal(t, "ROUTE53", first.Group)
	assert.Equal(t, report.StatusOK, first.Status)
	assert.Len(t, first.Rows, 2)

	assert.Equal(t, "ROUTE53", second.Group)
	assert.Equal(t, report.StatusEmpty, second.Status)
	assert.Equal(t, []report.Row{report.NoResourcesRow()}, second.Rows)

	assert.Len(t, rep.Group("ROUTE53"), 2)
	assert.Equal(t, []recordedCategory{{category: "ROUTE53", status: report.StatusOK, rows: 2}}, rec.records)
}

func TestCollect_MultiTableCategoryWithoutGroups(t *testing.T) {
	c := newTestCollector(t, nil, nil, Category{Name: "ROUTE53", Tables: func(context.Context) ([]report.Table, error) {
		return nil, nil
	}})

	rep, err := c.Collect(context.Background(), []string{"ROUTE53"})

	require.NoError(t, err)
	require.Len(t, rep.Tables, 1)
	tbl := rep.Tables[0]
	assert.Equal(t, "ROUTE53", tbl.Category)
	assert.Empty(t, tbl.Group)
	assert.Equal(t, report.StatusEmpty, tbl.Status)
	assert.Equal(t, []report.Row{report.NoResourcesRow()}, tbl.Rows)
}

func TestCollect_MultiTableCategoryError(t *testing.T) {
	c := newTestCollector(t, nil, nil, Category{Name: "ROUTE53", Tables: func(context.Context) ([]report.Table, error) {
		return nil, &smithy.GenericAPIError{Code: "AccessDenied", Message: "not authorized to perform route53:ListHostedZones"}
	}})

	rep, err := c.Collect(context.Background(), []string{"ROUTE53"})

	require.NoError(t, err)
	require.Len(t, rep.Tables, 1)
	tbl := rep.Tables[0]
	assert.Equal(t, "ROUTE53", tbl.Category)
	assert.Equal(t, report.StatusError, tbl.Status)
	assert.Equal(t, "AccessDenied", tbl.Rows[0].Get(report.CodeColumn).String())
}
