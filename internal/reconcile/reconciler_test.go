package reconcile

import (
	"os"
	"sort"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/throwbridge/throwbridge/internal/catalog"
	"github.com/throwbridge/throwbridge/internal/metrics"
	"github.com/throwbridge/throwbridge/internal/schema"
)

type recorder struct {
	msgs []any
}

func (r *recorder) Send(msg any) bool {
	r.msgs = append(r.msgs, msg)
	return true
}

func (r *recorder) removes() []string {
	var out []string
	for _, m := range r.msgs {
		if rm, ok := m.(schema.RemoveStateMessage); ok {
			out = append(out, rm.ID)
		}
	}
	return out
}

func (r *recorder) creates() []schema.CreateStateMessage {
	var out []schema.CreateStateMessage
	for _, m := range r.msgs {
		if cs, ok := m.(schema.CreateStateMessage); ok {
			out = append(out, cs)
		}
	}
	return out
}

func (r *recorder) choices() []schema.ChoiceUpdateMessage {
	var out []schema.ChoiceUpdateMessage
	for _, m := range r.msgs {
		if cu, ok := m.(schema.ChoiceUpdateMessage); ok {
			out = append(out, cu)
		}
	}
	return out
}

func item(name, id string) catalog.Entity {
	return catalog.NewEntity(catalog.KindItems, map[string]string{"name": name, "id": id})
}

func setup(t *testing.T) (*Reconciler, *recorder, *catalog.Store, *metrics.Metrics) {
	t.Helper()
	store := catalog.NewStore(t.TempDir(), nil)
	rec := &recorder{}
	m := metrics.New()
	return New(store, rec, m, nil), rec, store, m
}

func TestReconcile_FreshCollection(t *testing.T) {
	r, rec, store, _ := setup(t)

	res := r.Reconcile(catalog.KindItems, []catalog.Entity{item("Egg", "abc2"), item("Confetti", "abc1")})

	assert.Empty(t, rec.removes())
	choices := rec.choices()
	require.Len(t, choices, 1)
	assert.Equal(t, "item", choices[0].ID)
	assert.Equal(t, []string{"Confetti", "Egg"}, choices[0].Value)

	creates := rec.creates()
	require.Len(t, creates, 2)
	assert.Equal(t, "Confetti", creates[0].ID)
	assert.Equal(t, "abc1", creates[0].DefaultValue)
	assert.Equal(t, "Throwables", creates[0].ParentGroup)
	assert.False(t, creates[0].ForceUpdate)
	assert.Equal(t, "Egg", creates[1].ID)
	assert.Equal(t, "Throwables", creates[1].ParentGroup)

	assert.Equal(t, 2, res.Created)
	assert.True(t, store.Loaded(catalog.KindItems))
	assert.Equal(t, []string{"Confetti", "Egg"}, store.SnapshotTokens(catalog.KindItems))
}

func TestReconcile_RetractsRemoved(t *testing.T) {
	r, rec, _, m := setup(t)

	r.Reconcile(catalog.KindItems, []catalog.Entity{item("Confetti", "abc1"), item("Egg", "abc2")})
	rec.msgs = nil

	res := r.Reconcile(catalog.KindItems, []catalog.Entity{item("Confetti", "abc1")})

	assert.Equal(t, []string{"Egg"}, rec.removes())
	assert.Equal(t, []string{"Egg"}, res.Retracted)
	choices := rec.choices()
	require.Len(t, choices, 1)
	assert.Equal(t, []string{"Confetti"}, choices[0].Value)
	creates := rec.creates()
	require.Len(t, creates, 1)
	assert.Equal(t, "Confetti", creates[0].ID)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Reconciliations.WithLabelValues("items")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatesRetracted.WithLabelValues("items")))
}

func TestReconcile_MessageOrder(t *testing.T) {
	r, rec, _, _ := setup(t)
	r.Reconcile(catalog.KindItems, []catalog.Entity{item("Old", "x")})
	rec.msgs = nil

	r.Reconcile(catalog.KindItems, []catalog.Entity{item("New", "y")})

	require.Len(t, rec.msgs, 3)
	assert.IsType(t, schema.RemoveStateMessage{}, rec.msgs[0])
	assert.IsType(t, schema.ChoiceUpdateMessage{}, rec.msgs[1])
	assert.IsType(t, schema.CreateStateMessage{}, rec.msgs[2])
}

func TestReconcile_RetractsExactlyPreviousMinusCurrent(t *testing.T) {
	r, rec, store, _ := setup(t)

	// Previous snapshot written by an earlier process, including a duplicate line.
	prev := "Alpha : 1\nBeta : 2\nGamma Ray : 3\nBeta : 2\n"
	require.NoError(t, os.WriteFile(store.SnapshotPath(catalog.KindItems), []byte(prev), 0o644))

	r.Reconcile(catalog.KindItems, []catalog.Entity{item("beta", "2"), item("Beta", "2b"), item("Delta", "4")})

	removed := rec.removes()
	sort.Strings(removed)
	assert.Equal(t, []string{"Alpha", "Gamma_Ray"}, removed)
}

func TestReconcile_CaseInsensitiveStableSort(t *testing.T) {
	r, rec, _, _ := setup(t)

	r.Reconcile(catalog.KindItems, []catalog.Entity{
		item("banana", "1"),
		item("Apple", "2"),
		item("apple", "3"),
		item("Cherry", "4"),
	})

	choices := rec.choices()
	require.Len(t, choices, 1)
	assert.Equal(t, []string{"Apple", "apple", "banana", "Cherry"}, choices[0].Value)
}

func TestReconcile_SkipsIncompleteEntities(t *testing.T) {
	r, rec, _, _ := setup(t)

	res := r.Reconcile(catalog.KindItems, []catalog.Entity{
		item("No Id", ""),
		item("!!!", "zz"),
		item("Ok", "1"),
	})

	assert.Equal(t, 1, res.Created)
	creates := rec.creates()
	require.Len(t, creates, 1)
	assert.Equal(t, "Ok", creates[0].ID)
	// Still listed as choices.
	assert.ElementsMatch(t, []string{"No Id", "!!!", "Ok"}, res.Published)
}

func TestReconcile_Triggers(t *testing.T) {
	r, rec, store, _ := setup(t)

	trig := catalog.NewEntity(catalog.KindTriggers, map[string]string{
		"name": "Rain", "displayName": "Make it rain", "id": "t1",
	})
	r.Reconcile(catalog.KindTriggers, []catalog.Entity{trig})

	choices := rec.choices()
	require.Len(t, choices, 1)
	assert.Equal(t, "trigger", choices[0].ID)
	assert.Equal(t, []string{"Make it rain"}, choices[0].Value)

	creates := rec.creates()
	require.Len(t, creates, 1)
	assert.Equal(t, "Rain", creates[0].ID)
	assert.Equal(t, "Rain", creates[0].Desc)
	assert.Equal(t, "t1", creates[0].DefaultValue)
	assert.Equal(t, "Triggers", creates[0].ParentGroup)

	data, err := os.ReadFile(store.SnapshotPath(catalog.KindTriggers))
	require.NoError(t, err)
	assert.Equal(t, "Rain : t1", string(data))
}

func TestReconcile_EmptyCollectionRetractsAll(t *testing.T) {
	r, rec, _, _ := setup(t)
	r.Reconcile(catalog.KindItems, []catalog.Entity{item("A", "1"), item("B", "2")})
	rec.msgs = nil

	r.Reconcile(catalog.KindItems, nil)

	assert.ElementsMatch(t, []string{"A", "B"}, rec.removes())
	choices := rec.choices()
	require.Len(t, choices, 1)
	assert.Equal(t, []string{}, choices[0].Value)
	assert.Empty(t, rec.creates())
}
