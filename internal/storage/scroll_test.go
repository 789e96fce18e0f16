package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCollection serves pages the way Qdrant does: the offset is inclusive and
// the next offset is the id of the first point of the following page.
type fakeCollection struct {
	ids   []string
	limit int
	calls int
}

func (f *fakeCollection) fetch(_ context.Context, offset *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	f.calls++
	start := 0
	if offset != nil {
		for i, id := range f.ids {
			if id == offset.GetUuid() {
				start = i
				break
			}
		}
	}

	end := min(start+f.limit, len(f.ids))
	page := make([]*qdrant.RetrievedPoint, 0, end-start)
	for _, id := range f.ids[start:end] {
		page = append(page, &qdrant.RetrievedPoint{Id: qdrant.NewIDUUID(id)})
	}

	var next *qdrant.PointId
	if end < len(f.ids) {
		next = qdrant.NewIDUUID(f.ids[end])
	}
	return page, next, nil
}

func fakeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("00000000-0000-0000-0000-%012d", i)
	}
	return ids
}

func TestScrollPages_CrossesPageBoundaryWithoutDuplicates(t *testing.T) {
	tests := []struct {
		name      string
		points    int
		wantCalls int
	}{
		{"empty", 0, 1},
		{"single partial page", 40, 1},
		{"exactly one page", scrollPageSize, 1},
		{"one and a half pages", 150, 2},
		{"three full pages", 3 * scrollPageSize, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeCollection{ids: fakeIDs(tt.points), limit: scrollPageSize}

			seen := map[string]int{}
			var order []string
			err := scrollPages(context.Background(), fake.fetch, func(p *qdrant.RetrievedPoint) {
				seen[p.Id.GetUuid()]++
				order = append(order, p.Id.GetUuid())
			})
			require.NoError(t, err)

			assert.Len(t, order, tt.points)
			assert.Len(t, seen, tt.points)
			for id, n := range seen {
				assert.Equal(t, 1, n, "point %s visited more than once", id)
			}
			if tt.points > 0 {
				assert.Equal(t, fake.ids, order)
			}
			assert.Equal(t, tt.wantCalls, fake.calls)
		})
	}
}

func TestScrollPages_PropagatesFetchError(t *testing.T) {
	boom := errors.New("connection reset")
	err := scrollPages(context.Background(), func(context.Context, *qdrant.PointId) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
		return nil, nil, boom
	}, func(*qdrant.RetrievedPoint) {
		t.Fatal("visit called after a failed fetch")
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to scroll documents")
}
