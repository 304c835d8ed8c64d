package query

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPage_TotalPages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		total int64
		size  int
		want  int
	}{
		{total: 0, size: 10, want: 0},
		{total: 1, size: 10, want: 1},
		{total: 10, size: 10, want: 1},
		{total: 11, size: 10, want: 2},
		{total: 101, size: 25, want: 5},
	}

	for _, tc := range cases {
		page := NewPage([]int{}, tc.total, Pageable{Page: 1, Size: tc.size}, ParseSort(""))
		require.Equal(t, tc.want, page.TotalPages, "total=%d size=%d", tc.total, tc.size)
	}
}

func TestPage_FirstLast(t *testing.T) {
	t.Parallel()

	first := NewPage([]int{1, 2}, 5, Pageable{Page: 1, Size: 2}, ParseSort(""))
	require.True(t, first.IsFirst())
	require.False(t, first.IsLast())

	last := NewPage([]int{5}, 5, Pageable{Page: 3, Size: 2}, ParseSort(""))
	require.False(t, last.IsFirst())
	require.True(t, last.IsLast())

	empty := NewPage[int](nil, 0, Pageable{Page: 1, Size: 2}, ParseSort(""))
	require.True(t, empty.IsFirst())
	require.True(t, empty.IsLast())
	require.NotNil(t, empty.Content)
}

func TestMap_PreservesMetadata(t *testing.T) {
	t.Parallel()

	page := NewPage([]int{3, 4}, 12, Pageable{Page: 2, Size: 2}, ParseSort("price,desc"))
	mapped := Map(page, func(v int) string { return strconv.Itoa(v * 10) })

	require.Equal(t, []string{"30", "40"}, mapped.Content)
	require.Equal(t, page.Total, mapped.Total)
	require.Equal(t, page.CurrentPage, mapped.CurrentPage)
	require.Equal(t, page.Size, mapped.Size)
	require.Equal(t, page.TotalPages, mapped.TotalPages)
	require.Equal(t, "price", mapped.SortBy)
	require.Equal(t, Desc, mapped.SortDirection)
}

// sliceSource отдаёт страницы среза чисел, фильтр поддерживает только gte/lte по полю "value".
type sliceSource struct {
	items      []int
	countCalls int
	findCalls  int
	lastFilter Filter
}

func (s *sliceSource) Sortable(field string) bool { return field == "id" || field == "value" }

func (s *sliceSource) match(filter Filter, v int) bool {
	for _, group := range filter.Groups {
		ok := false
		for _, alt := range group {
			altOK := true
			for _, term := range alt {
				bound := term.Value().(int)
				switch term.Op {
				case OpGTE:
					altOK = altOK && v >= bound
				case OpLTE:
					altOK = altOK && v <= bound
				}
			}
			ok = ok || altOK
		}
		if !ok {
			return false
		}
	}
	return true
}

func (s *sliceSource) Count(_ context.Context, filter Filter) (int64, error) {
	s.countCalls++
	s.lastFilter = filter
	var n int64
	for _, v := range s.items {
		if s.match(filter, v) {
			n++
		}
	}
	return n, nil
}

func (s *sliceSource) Find(_ context.Context, filter Filter, window Window) ([]int, error) {
	s.findCalls++
	var matched []int
	for _, v := range s.items {
		if s.match(filter, v) {
			matched = append(matched, v)
		}
	}
	sort.Ints(matched)
	if window.Sort.Direction == Desc {
		sort.Sort(sort.Reverse(sort.IntSlice(matched)))
	}
	if window.Offset >= len(matched) {
		return nil, nil
	}
	end := window.Offset + window.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[window.Offset:end], nil
}

func TestGetPage_CountThenFetchWithSameFilter(t *testing.T) {
	t.Parallel()

	from, to := 100, 200
	source := &sliceSource{items: []int{50, 100, 120, 150, 200, 250}}
	filter := Filter{}.Where(Between("value", &from, &to))

	page, err := GetPage[int](context.Background(), source, Pageable{Page: 1, Size: 2, Sort: "value,asc"}, filter)
	require.NoError(t, err)
	require.Equal(t, []int{100, 120}, page.Content)
	require.EqualValues(t, 4, page.Total)
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, 1, source.countCalls)
	require.Equal(t, 1, source.findCalls)
	require.Equal(t, filter, source.lastFilter)
}

func TestGetPage_DescendingSort(t *testing.T) {
	t.Parallel()

	source := &sliceSource{items: []int{1, 5, 3}}
	page, err := GetPage[int](context.Background(), source, Pageable{Page: 1, Size: 10, Sort: "value,desc"}, Filter{})
	require.NoError(t, err)
	require.Equal(t, []int{5, 3, 1}, page.Content)
	require.Equal(t, "value", page.SortBy)
	require.Equal(t, Desc, page.SortDirection)
}

func TestGetPage_BeyondLastPage(t *testing.T) {
	t.Parallel()

	source := &sliceSource{items: []int{1, 2, 3}}
	page, err := GetPage[int](context.Background(), source, Pageable{Page: 4, Size: 2}, Filter{})
	require.NoError(t, err)
	require.Empty(t, page.Content)
	require.EqualValues(t, 3, page.Total)
	require.Equal(t, 2, page.TotalPages)
	require.Equal(t, 0, source.findCalls)
}

func TestGetPage_RejectsBeforeTouchingSource(t *testing.T) {
	t.Parallel()

	source := &sliceSource{items: []int{1}}

	_, err := GetPage[int](context.Background(), source, Pageable{Page: 1, Size: 10, Sort: "password,desc"}, Filter{})
	require.ErrorIs(t, err, ErrUnknownSortField)

	_, err = GetPage[int](context.Background(), source, Pageable{Page: 0, Size: 10}, Filter{})
	require.True(t, errors.Is(err, ErrInvalidQuery))

	_, err = GetPage[int](context.Background(), source, Pageable{Page: (1 << 62) + 1, Size: 10}, Filter{})
	require.ErrorIs(t, err, ErrPageOutOfRange)

	require.Zero(t, source.countCalls)
	require.Zero(t, source.findCalls)
}

func TestFilter_WhereSkipsEmptyAlternatives(t *testing.T) {
	t.Parallel()

	f := Filter{}.
		Where(In[int64]("id", nil), Contains("name", "")).
		Where(In("id", []int64{1, 2}), Contains("name", "phone"))

	require.Len(t, f.Groups, 1)
	require.Len(t, f.Groups[0], 2)
	require.Equal(t, []string{"id", "name"}, f.Fields())

	base := Filter{}.Where(Contains("name", "a"))
	_ = base.Where(Contains("description", "b"))
	require.Len(t, base.Groups, 1, "Where must not mutate receiver")
}
