package reconcile

import (
	"errors"
	"reflect"
	"sort"
	"testing"
)

func TestTriageGrownAndSplit(t *testing.T) {
	existing := []Existing[int]{
		{ID: "1", Members: []int{1, 2, 3, 4, 5}},
		{ID: "2", Members: []int{6, 7}},
		{ID: "3", Members: []int{8}},
	}
	fresh := [][]int{
		{1, 2, 3},
		{4, 5, 6},
		{7},
		{8, 9, 10},
	}

	res, err := Triage(existing, fresh)
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}

	wantUpdate := map[string][]int{
		"1": {1, 2, 3},
		"2": {7},
		"3": {8, 9, 10},
	}
	if !reflect.DeepEqual(res.Update, wantUpdate) {
		t.Errorf("Update = %v, want %v", res.Update, wantUpdate)
	}
	if want := [][]int{{4, 5, 6}}; !reflect.DeepEqual(res.Create, want) {
		t.Errorf("Create = %v, want %v", res.Create, want)
	}
	if len(res.Delete) != 0 {
		t.Errorf("Delete = %v, want empty", res.Delete)
	}
	if len(res.Unchanged) != 0 {
		t.Errorf("Unchanged = %v, want empty", res.Unchanged)
	}
}

func TestTriageExactMatchUnchanged(t *testing.T) {
	existing := []Existing[string]{
		{ID: "e1", Members: []string{"b", "a", "c"}},
	}
	fresh := [][]string{{"a", "b", "c"}}

	res, err := Triage(existing, fresh)
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if want := []string{"e1"}; !reflect.DeepEqual(res.Unchanged, want) {
		t.Errorf("Unchanged = %v, want %v", res.Unchanged, want)
	}
	if len(res.Update) != 0 || len(res.Create) != 0 || len(res.Delete) != 0 {
		t.Errorf("extra outcomes: update=%v create=%v delete=%v", res.Update, res.Create, res.Delete)
	}
}

func TestTriageNoMatchDeletes(t *testing.T) {
	existing := []Existing[int]{
		{ID: "gone", Members: []int{1, 2, 3, 4}},
	}
	fresh := [][]int{{5, 6, 7, 8, 9}}

	res, err := Triage(existing, fresh)
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if want := []string{"gone"}; !reflect.DeepEqual(res.Delete, want) {
		t.Errorf("Delete = %v, want %v", res.Delete, want)
	}
	if want := [][]int{{5, 6, 7, 8, 9}}; !reflect.DeepEqual(res.Create, want) {
		t.Errorf("Create = %v, want %v", res.Create, want)
	}
}

// A contested cluster goes to the earlier entity; the loser keeps looking
// and may still claim something else.
func TestTriageContestedClusterOrder(t *testing.T) {
	fresh := [][]int{{1, 2, 3, 4}}
	a := Existing[int]{ID: "a", Members: []int{1, 2, 3}}
	b := Existing[int]{ID: "b", Members: []int{2, 3, 4}}

	res, err := Triage([]Existing[int]{a, b}, fresh)
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if _, ok := res.Update["a"]; !ok {
		t.Errorf("first-scanned entity should win the contested cluster, got update=%v", res.Update)
	}
	if want := []string{"b"}; !reflect.DeepEqual(res.Delete, want) {
		t.Errorf("Delete = %v, want %v", res.Delete, want)
	}

	res, err = Triage([]Existing[int]{b, a}, fresh)
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if _, ok := res.Update["b"]; !ok {
		t.Errorf("order flip should flip the winner, got update=%v", res.Update)
	}
}

// Every existing id lands in exactly one outcome and every fresh cluster is
// either claimed by an update or created.
func TestTriageTotality(t *testing.T) {
	existing := []Existing[int]{
		{ID: "e1", Members: []int{1, 2, 3}},
		{ID: "e2", Members: []int{10, 11}},
		{ID: "e3", Members: []int{20, 21, 22}},
		{ID: "e4", Members: []int{}},
	}
	fresh := [][]int{
		{1, 2, 3},
		{10, 11, 12, 13},
		{30, 31},
	}

	res, err := Triage(existing, fresh)
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}

	var ids []string
	for id := range res.Update {
		ids = append(ids, id)
	}
	ids = append(ids, res.Delete...)
	ids = append(ids, res.Unchanged...)
	sort.Strings(ids)
	if want := []string{"e1", "e2", "e3", "e4"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("outcome ids = %v, want %v", ids, want)
	}
	if got := len(res.Update) + len(res.Unchanged) + len(res.Create); got != len(fresh) {
		t.Errorf("claimed+created = %d, want %d", got, len(fresh))
	}
}

// An entity with no members never exact-matches anything, including an
// empty fresh cluster.
func TestTriageEmptyMembers(t *testing.T) {
	existing := []Existing[int]{{ID: "empty", Members: nil}}

	res, err := Triage(existing, [][]int{{1, 2}})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if want := []string{"empty"}; !reflect.DeepEqual(res.Delete, want) {
		t.Errorf("Delete = %v, want %v", res.Delete, want)
	}

	res, err = Triage(existing, [][]int{{}})
	if err != nil {
		t.Fatalf("Triage: %v", err)
	}
	if want := []string{"empty"}; !reflect.DeepEqual(res.Delete, want) {
		t.Errorf("empty-vs-empty should not match: Delete = %v, want %v", res.Delete, want)
	}
}

func TestTriageDuplicateMemberFatal(t *testing.T) {
	_, err := Triage(nil, [][]int{{1, 2}, {2, 3}})
	if !errors.Is(err, ErrPartitionViolation) {
		t.Fatalf("err = %v, want ErrPartitionViolation", err)
	}
}

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		a, b []int
		want float64
	}{
		{"identical", []int{1, 2, 3}, []int{1, 2, 3}, 1.0},
		{"disjoint", []int{1, 2}, []int{3, 4}, 0.0},
		{"partial", []int{1, 2, 3, 4, 5}, []int{1, 2, 3}, 0.75},
		{"both empty", nil, nil, 0.0},
		{"one empty", []int{1}, nil, 0.0},
		{"duplicates", []int{1, 1, 2}, []int{1, 1, 3}, 4.0 / 6.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ratio(tt.a, tt.b); got != tt.want {
				t.Errorf("ratio(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
