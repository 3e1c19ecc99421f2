package similarity

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ppiankov/storyline/internal/model"
	"github.com/ppiankov/storyline/internal/vectorize"
)

var testBase = time.Date(2016, 9, 2, 12, 0, 0, 0, time.UTC)

func testModel() *Model {
	return NewModel(
		vectorize.NewHashingTextVectorizer(64),
		vectorize.NewHashingConceptVectorizer(64),
		DefaultWeights(),
		72*time.Hour,
		nil,
	)
}

func doc(id, text string, concepts []string, at time.Time) model.Doc {
	assocs := make([]model.ConceptAssociation, len(concepts))
	for i, c := range concepts {
		assocs[i] = model.ConceptAssociation{Concept: c, Score: 1}
	}
	return model.Doc{ID: id, CreatedAt: at, UpdatedAt: at, Text: text, Concepts: assocs}
}

func TestSimilaritySymmetryAndBounds(t *testing.T) {
	m := testModel()
	docs := []model.Doc{
		doc("a", "clinton email investigation continues", []string{"Hillary Clinton", "FBI"}, testBase),
		doc("b", "fbi releases clinton email files", []string{"Hillary Clinton", "FBI"}, testBase.Add(5*time.Hour)),
		doc("c", "hurricane lashes the florida coast", []string{"Florida"}, testBase.Add(200*time.Hour)),
		doc("d", "", nil, testBase),
	}

	for _, a := range docs {
		for _, b := range docs {
			ab := m.Similarity(a, b)
			ba := m.Similarity(b, a)
			if math.Abs(ab-ba) > 1e-12 {
				t.Errorf("Similarity(%s,%s)=%v but reversed=%v", a.ID, b.ID, ab, ba)
			}
			if ab < 0 || ab > 1 {
				t.Errorf("Similarity(%s,%s)=%v out of [0,1]", a.ID, b.ID, ab)
			}
		}
	}
}

func TestSimilarityIdenticalNearOne(t *testing.T) {
	m := testModel()
	a := doc("a", "clinton email investigation continues", []string{"Hillary Clinton"}, testBase)
	if got := m.Similarity(a, a); math.Abs(got-1) > 1e-9 {
		t.Errorf("self similarity = %v, want 1", got)
	}
}

func TestSimilarityRelatedBeatsUnrelated(t *testing.T) {
	m := testModel()
	a := doc("a", "fbi releases files from clinton email investigation", []string{"Hillary Clinton", "FBI"}, testBase)
	related := doc("b", "clinton email investigation files released by fbi agents", []string{"Hillary Clinton", "FBI"}, testBase.Add(time.Hour))
	unrelated := doc("c", "hurricane knocks out power along the gulf coast", []string{"Florida"}, testBase.Add(time.Hour))

	if sr, su := m.Similarity(a, related), m.Similarity(a, unrelated); sr <= su {
		t.Errorf("related=%v should exceed unrelated=%v", sr, su)
	}
}

// Two contentless docs share no signal, so the text and concept terms are 0
// even though both vectors are identical.
func TestSimilarityZeroVectorPolicy(t *testing.T) {
	m := testModel()
	a := doc("a", "", nil, testBase)
	b := doc("b", "", nil, testBase)

	// Only the temporal term contributes: both docs are inside the ideal
	// window, so similarity = w_time / (w_concept + w_text + w_time).
	want := 2.0 / 5.0
	if got := m.Similarity(a, b); math.Abs(got-want) > 1e-12 {
		t.Errorf("empty-vs-empty similarity = %v, want %v", got, want)
	}
}

func TestTimeScoreWindow(t *testing.T) {
	m := testModel()
	a := doc("a", "same words here", nil, testBase)

	inside := doc("b", "same words here", nil, testBase.Add(71*time.Hour))
	edge := doc("c", "same words here", nil, testBase.Add(144*time.Hour))

	si := m.Similarity(a, inside)
	se := m.Similarity(a, edge)
	if si <= se {
		t.Errorf("inside-window similarity %v should exceed outside %v", si, se)
	}

	// At exactly 2x the ideal window the temporal term is 0.5.
	if got, want := m.timeScore(testBase, testBase.Add(144*time.Hour)), 0.5; math.Abs(got-want) > 1e-12 {
		t.Errorf("timeScore at 2x window = %v, want %v", got, want)
	}
	if got := m.timeScore(testBase, testBase.Add(time.Hour)); got != 1 {
		t.Errorf("timeScore inside window = %v, want 1", got)
	}
}

func TestClusterSimilarity(t *testing.T) {
	m := testModel()
	members := []model.Doc{
		doc("a", "clinton email files released", []string{"Hillary Clinton"}, testBase),
		doc("b", "clinton email probe report", []string{"Hillary Clinton"}, testBase.Add(time.Hour)),
	}
	candidate := doc("c", "clinton email investigation detailed", []string{"Hillary Clinton"}, testBase.Add(2*time.Hour))

	got, err := m.ClusterSimilarity(members, candidate)
	if err != nil {
		t.Fatalf("ClusterSimilarity: %v", err)
	}
	want := (m.Similarity(members[0], candidate) + m.Similarity(members[1], candidate)) / 2
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("ClusterSimilarity = %v, want mean %v", got, want)
	}

	if _, err := m.ClusterSimilarity(nil, candidate); !errors.Is(err, ErrEmptyCluster) {
		t.Errorf("err = %v, want ErrEmptyCluster", err)
	}
}

func TestMostSimilar(t *testing.T) {
	m := testModel()
	docs := []model.Doc{
		doc("outlier", "completely different topic entirely", []string{"Florida"}, testBase),
		doc("core1", "clinton email files released by fbi", []string{"Hillary Clinton", "FBI"}, testBase),
		doc("core2", "fbi releases clinton email files today", []string{"Hillary Clinton", "FBI"}, testBase.Add(time.Hour)),
		doc("core3", "clinton email files from fbi probe", []string{"Hillary Clinton", "FBI"}, testBase.Add(2*time.Hour)),
	}

	idx, err := m.MostSimilar(docs)
	if err != nil {
		t.Fatalf("MostSimilar: %v", err)
	}
	if idx == 0 {
		t.Errorf("outlier picked as most similar")
	}

	if _, err := m.MostSimilar(nil); !errors.Is(err, ErrEmptyCluster) {
		t.Errorf("err = %v, want ErrEmptyCluster", err)
	}

	// Single doc: trivially the pick.
	idx, err = m.MostSimilar(docs[:1])
	if err != nil || idx != 0 {
		t.Errorf("MostSimilar(single) = %d, %v; want 0, nil", idx, err)
	}
}
