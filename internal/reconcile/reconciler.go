// Package reconcile publishes a freshly fetched catalog collection to the
// Control Host, retracting states that disappeared since the last snapshot.
package reconcile

import (
	"log/slog"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/throwbridge/throwbridge/internal/catalog"
	"github.com/throwbridge/throwbridge/internal/metrics"
	"github.com/throwbridge/throwbridge/internal/schema"
)

// Publisher delivers messages to the Control Host without blocking.
type Publisher interface {
	Send(msg any) bool
}

// Result summarises one reconciliation pass.
type Result struct {
	Published []string // choice values, in sorted order
	Retracted []string // tokens removed from the Control Host
	Created   int      // createState messages emitted
}

// Reconciler diffs collections against the store's snapshots.
type Reconciler struct {
	store   *catalog.Store
	host    Publisher
	metrics *metrics.Metrics
	log     *slog.Logger
}

func New(store *catalog.Store, host Publisher, m *metrics.Metrics, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{store: store, host: host, metrics: m, log: log}
}

// Reconcile replaces the kind's collection with entities and brings the
// Control Host in line with it. The snapshot is written before states are
// created, so an interrupted pass at worst repeats a create next time.
func (r *Reconciler) Reconcile(kind catalog.Kind, entities []catalog.Entity) Result {
	sorted := sortByLabel(entities)
	r.store.Replace(kind, sorted)

	current := make(map[string]struct{}, len(sorted))
	for _, e := range sorted {
		if tok := e.Token(); tok != "" {
			current[tok] = struct{}{}
		}
	}

	var res Result
	seen := make(map[string]struct{})
	for _, tok := range r.store.SnapshotTokens(kind) {
		if _, ok := current[tok]; ok {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		r.host.Send(schema.NewRemoveState(tok))
		res.Retracted = append(res.Retracted, tok)
	}

	res.Published = make([]string, len(sorted))
	for i, e := range sorted {
		res.Published[i] = e.Label()
	}
	r.host.Send(schema.NewChoiceUpdate(kind.ChoiceID(), res.Published))

	r.store.PersistSnapshot(kind, sorted)

	for _, e := range sorted {
		tok, id := e.Token(), e.Identifier()
		if tok == "" || id == "" {
			continue
		}
		r.host.Send(schema.NewCreateState(tok, e.StateName(), id, kind.Group()))
		res.Created++
	}

	r.metrics.Reconciled(string(kind), len(res.Retracted))
	r.log.Debug("reconcile: collection updated",
		"kind", kind, "count", len(sorted), "retracted", len(res.Retracted), "created", res.Created)
	return res
}

// sortByLabel returns a copy of entities ordered by label, ignoring case.
func sortByLabel(entities []catalog.Entity) []catalog.Entity {
	out := make([]catalog.Entity, len(entities))
	copy(out, entities)
	col := collate.New(language.Und, collate.IgnoreCase)
	sort.SliceStable(out, func(i, j int) bool {
		return col.CompareString(out[i].Label(), out[j].Label()) < 0
	})
	return out
}
