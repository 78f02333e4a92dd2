package dwrep

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/leapstack-labs/dwprobe/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMock(t *testing.T) (*core.Connection, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return core.NewConnection("mock", db, core.PlaceholderQuestion), mock
}

func TestNewDimension_Query(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		attributes []string
		lookupatts []string
		wantCols   []string
		wantQuery  string
	}{
		{
			name:       "lookup attributes default to attributes",
			key:        "id",
			attributes: []string{"name", "price"},
			wantCols:   []string{"id", "name", "price"},
			wantQuery:  "SELECT id, name, price FROM product",
		},
		{
			name:       "explicit lookup attributes appended",
			key:        "id",
			attributes: []string{"name", "price"},
			lookupatts: []string{"sku"},
			wantCols:   []string{"id", "name", "price", "sku"},
			wantQuery:  "SELECT id, name, price, sku FROM product",
		},
		{
			name:       "overlapping roles keep first position",
			key:        "id",
			attributes: []string{"name"},
			lookupatts: []string{"name", "id"},
			wantCols:   []string{"id", "name"},
			wantQuery:  "SELECT id, name FROM product",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := NewDimension("Product", tt.key, tt.attributes, tt.lookupatts, nil)
			assert.Equal(t, "product", tbl.Name)
			assert.Equal(t, KindDimension, tbl.Kind)
			assert.Equal(t, tt.wantCols, tbl.Columns())
			assert.Equal(t, tt.wantQuery, tbl.Query())
		})
	}
}

func TestNewDimension_DefaultLookupAtts(t *testing.T) {
	tbl := NewDimension("d", "id", []string{"a", "b"}, nil, nil)
	assert.Equal(t, []string{"a", "b"}, tbl.LookupAtts)
}

func TestNewFact_Query(t *testing.T) {
	tbl := NewFact("Sales", []string{"a_id", "b_id"}, []string{"amount"}, nil)
	assert.Equal(t, "sales", tbl.Name)
	assert.Equal(t, KindFact, tbl.Kind)
	assert.Equal(t, "SELECT a_id, b_id, amount FROM sales", tbl.Query())

	noMeasures := NewFact("f", []string{"a_id"}, nil, nil)
	assert.Equal(t, "SELECT a_id FROM f", noMeasures.Query())
}

func TestTable_Rows(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery("SELECT id, name FROM product").WillReturnRows(
		sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(1), []byte("apple")).
			AddRow(int64(2), "pear"),
	)

	tbl := NewDimension("product", "id", []string{"name"}, nil, conn)

	var got []Row
	for row, err := range tbl.Rows(context.Background()) {
		require.NoError(t, err)
		got = append(got, row)
	}

	assert.Equal(t, []Row{
		{"id": int64(1), "name": "apple"},
		{"id": int64(2), "name": "pear"},
	}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTable_RowsProjection(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery("SELECT a_id, amount FROM sales").WillReturnRows(
		sqlmock.NewRows([]string{"a_id", "amount"}).AddRow(7, 9.5),
	)

	tbl := NewFact("sales", []string{"a_id"}, []string{"amount"}, conn)

	var got []Row
	for row, err := range tbl.Rows(context.Background(), "amount") {
		require.NoError(t, err)
		got = append(got, row)
	}
	assert.Equal(t, []Row{{"amount": 9.5}}, got)
}

func TestTable_RowsUnknownColumn(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery("SELECT a_id FROM sales").WillReturnRows(
		sqlmock.NewRows([]string{"a_id"}).AddRow(1),
	)

	tbl := NewFact("sales", []string{"a_id"}, nil, conn)

	var errs []error
	for row, err := range tbl.Rows(context.Background(), "nope") {
		assert.Nil(t, row)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)

	var colErr *UnknownColumnError
	require.True(t, errors.As(errs[0], &colErr))
	assert.Equal(t, "nope", colErr.Column)
	assert.Equal(t, "sales", colErr.Table)
}

func TestTable_Batches(t *testing.T) {
	conn, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"k"})
	total := 2*BatchSize + 3
	for i := 0; i < total; i++ {
		rows.AddRow(i)
	}
	mock.ExpectQuery("SELECT k FROM f").WillReturnRows(rows)

	tbl := NewFact("f", []string{"k"}, nil, conn)

	var sizes []int
	for batch, err := range tbl.Batches(context.Background()) {
		require.NoError(t, err)
		sizes = append(sizes, len(batch))
	}
	assert.Equal(t, []int{BatchSize, BatchSize, 3}, sizes)
}

func TestTable_BatchesEarlyStop(t *testing.T) {
	conn, mock := newMock(t)
	rows := sqlmock.NewRows([]string{"k"})
	for i := 0; i < BatchSize+1; i++ {
		rows.AddRow(i)
	}
	mock.ExpectQuery("SELECT k FROM f").WillReturnRows(rows).RowsWillBeClosed()

	tbl := NewFact("f", []string{"k"}, nil, conn)

	n := 0
	for _, err := range tbl.Rows(context.Background()) {
		require.NoError(t, err)
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTable_QueryError(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery("SELECT k FROM f").WillReturnError(assert.AnError)

	tbl := NewFact("f", []string{"k"}, nil, conn)
	for row, err := range tbl.Rows(context.Background()) {
		assert.Nil(t, row)
		require.Error(t, err)
		assert.ErrorIs(t, err, assert.AnError)
	}
}

func TestTable_NoConnection(t *testing.T) {
	tbl := NewFact("f", []string{"k"}, nil, nil)
	for _, err := range tbl.Batches(context.Background()) {
		assert.ErrorContains(t, err, "no connection")
	}
	_, err := tbl.Count(context.Background())
	assert.Error(t, err)
}

func TestTable_Count(t *testing.T) {
	conn, mock := newMock(t)
	mock.ExpectQuery("SELECT COUNT(*) FROM f").WillReturnRows(
		sqlmock.NewRows([]string{"count"}).AddRow(int64(12)),
	)

	n, err := NewFact("f", []string{"k"}, nil, conn).Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
