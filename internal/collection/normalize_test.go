package collection_test

import (
	"testing"

	"github.com/vladislavdragonenkov/mosync/internal/collection"
)

func TestNormalize_KnownShapes(t *testing.T) {
	cases := []struct {
		name           string
		raw            string
		wantOrders     int
		wantFirstID    string
		wantPagination bool
	}{
		{
			name:        "bare array",
			raw:         `[{"id":"o-1","status":"pending"},{"id":"o-2","status":"approved"}]`,
			wantOrders:  2,
			wantFirstID: "o-1",
		},
		{
			name:           "keyed object with orders",
			raw:            `{"orders":[{"id":"o-1","status":"pending"}],"pagination":{"page":1,"limit":20},"status_counts":{"pending":1}}`,
			wantOrders:     1,
			wantFirstID:    "o-1",
			wantPagination: true,
		},
		{
			name:        "keyed object with items",
			raw:         `{"items":[{"id":"o-3","status":"issue"}]}`,
			wantOrders:  1,
			wantFirstID: "o-3",
		},
		{
			name:           "nested data object",
			raw:            `{"data":{"orders":[{"_id":"1","status":"pending"}],"pagination":{"page":2}}}`,
			wantOrders:     1,
			wantFirstID:    "1",
			wantPagination: true,
		},
		{
			name:        "nested data array",
			raw:         `{"data":[{"id":"o-4","status":"completed"}]}`,
			wantOrders:  1,
			wantFirstID: "o-4",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := collection.Normalize([]byte(tc.raw), nil)
			if len(payload.Orders) != tc.wantOrders {
				t.Fatalf("orders = %d, want %d", len(payload.Orders), tc.wantOrders)
			}
			if payload.Orders[0].ID != tc.wantFirstID {
				t.Fatalf("first id = %q, want %q", payload.Orders[0].ID, tc.wantFirstID)
			}
			if tc.wantPagination && len(payload.Pagination) == 0 {
				t.Fatal("expected pagination snapshot to be carried over")
			}
		})
	}
}

func TestNormalize_UnrecognizedShapesDegrade(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ``},
		{"null", `null`},
		{"scalar", `42`},
		{"string", `"hello"`},
		{"object without list", `{"total":10}`},
		{"corrupt json", `{"orders":[{`},
		{"list of scalars", `{"orders":[1,2,3]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			// Нераспознанная форма не паникует и не возвращает nil.
			payload := collection.Normalize([]byte(tc.raw), nil)
			if payload.Orders == nil {
				t.Fatal("orders must be an empty slice, not nil")
			}
			if len(payload.Orders) != 0 {
				t.Fatalf("expected empty orders, got %d", len(payload.Orders))
			}
		})
	}
}

func TestNormalizeList_Shapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want int
	}{
		{"bare array", `[{"id":"b-1","name":"north"},{"id":"b-2","name":"south"}]`, 2},
		{"items object", `{"items":[{"_id":"m-1","name":"press"}]}`, 1},
		{"nested data", `{"data":[{"id":"c-1","name":"acme"}]}`, 1},
		{"unknown shape", `{"count":3}`, 0},
		{"empty", ``, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			refs := collection.NormalizeList([]byte(tc.raw), nil)
			if refs == nil {
				t.Fatal("references must be an empty slice, not nil")
			}
			if len(refs) != tc.want {
				t.Fatalf("references = %d, want %d", len(refs), tc.want)
			}
		})
	}
}
