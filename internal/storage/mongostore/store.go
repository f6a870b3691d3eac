// Package mongostore keeps each solution as one MongoDB document.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"flowedit/internal/domain"
)

const DefaultCollection = "solutions"

// Store implements domain.SolutionStore on a MongoDB collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

var _ domain.SolutionStore = (*Store)(nil)

// Connect opens a client for uri and uses database db.
func Connect(ctx context.Context, uri, db string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client, client.Database(db).Collection(DefaultCollection)), nil
}

func New(client *mongo.Client, coll *mongo.Collection) *Store {
	return &Store{client: client, coll: coll}
}

func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func byName(name string) bson.M { return bson.M{"_id": name} }

func notFound(err error, name string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("solution %q: %w", name, domain.ErrSolutionNotFound)
	}
	return err
}

// ── Solutions ──────────────────────────────────────────────

func (s *Store) CreateSolution(ctx context.Context, name string) (*domain.Solution, error) {
	now := time.Now().UTC()
	sol := &domain.Solution{Name: name, States: []domain.State{}, Connectors: []domain.Connector{}, CreatedAt: now, UpdatedAt: now}
	if _, err := s.coll.InsertOne(ctx, sol); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("create solution %q: %w", name, domain.ErrSolutionExists)
		}
		return nil, fmt.Errorf("create solution: %w", err)
	}
	return sol, nil
}

func (s *Store) LoadSolution(ctx context.Context, name string) (*domain.Solution, error) {
	var sol domain.Solution
	if err := s.coll.FindOne(ctx, byName(name)).Decode(&sol); err != nil {
		return nil, fmt.Errorf("load solution: %w", notFound(err, name))
	}
	Attach(&sol)
	return &sol, nil
}

// Attach restores the owning state name on every slot; it is not stored in
// the nested slot documents.
func Attach(sol *domain.Solution) {
	for i := range sol.States {
		for j := range sol.States[i].Slots {
			sol.States[i].Slots[j].State = sol.States[i].Name
		}
	}
}

type summaryDoc struct {
	Name       string    `bson:"_id"`
	StateCount int       `bson:"stateCount"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

func (s *Store) ListSolutions(ctx context.Context) ([]domain.SolutionSummary, error) {
	pipeline := bson.A{
		bson.M{"$project": bson.M{
			"updatedAt":  1,
			"stateCount": bson.M{"$size": bson.M{"$ifNull": bson.A{"$states", bson.A{}}}},
		}},
		bson.M{"$sort": bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}}},
	}
	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("list solutions: %w", err)
	}
	defer cur.Close(ctx)

	var docs []summaryDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("list solutions: %w", err)
	}
	out := make([]domain.SolutionSummary, len(docs))
	for i, d := range docs {
		out[i] = domain.SolutionSummary{Name: d.Name, StateCount: d.StateCount, UpdatedAt: d.UpdatedAt}
	}
	return out, nil
}

func (s *Store) SaveSolution(ctx context.Context, sol *domain.Solution) error {
	doc := *sol
	doc.UpdatedAt = time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = doc.UpdatedAt
	}
	if doc.States == nil {
		doc.States = []domain.State{}
	}
	if doc.Connectors == nil {
		doc.Connectors = []domain.Connector{}
	}
	_, err := s.coll.ReplaceOne(ctx, byName(sol.Name), doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save solution: %w", err)
	}
	return nil
}

func (s *Store) DeleteSolution(ctx context.Context, name string) error {
	res, err := s.coll.DeleteOne(ctx, byName(name))
	if err != nil {
		return fmt.Errorf("delete solution: %w", err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("delete solution %q: %w", name, domain.ErrSolutionNotFound)
	}
	return nil
}

// ── States and connectors ──────────────────────────────────
// Nested updates read the document, change it and write it back guarded by
// its updatedAt, retrying when a concurrent writer got there first.

const maxRetries = 5

var errConflict = errors.New("concurrent update")

func (s *Store) mutate(ctx context.Context, name string, fn func(sol *domain.Solution) error) error {
	for attempt := 0; attempt < maxRetries; attempt++ {
		var sol domain.Solution
		if err := s.coll.FindOne(ctx, byName(name)).Decode(&sol); err != nil {
			return notFound(err, name)
		}
		Attach(&sol)
		prev := sol.UpdatedAt
		if err := fn(&sol); err != nil {
			return err
		}
		sol.UpdatedAt = time.Now().UTC()
		if !sol.UpdatedAt.After(prev) {
			sol.UpdatedAt = prev.Add(time.Millisecond)
		}
		res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": name, "updatedAt": prev}, sol)
		if err != nil {
			return err
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}
	return fmt.Errorf("solution %q: %w", name, errConflict)
}

func (s *Store) UpsertState(ctx context.Context, solution string, st *domain.State) error {
	err := s.mutate(ctx, solution, func(sol *domain.Solution) error {
		UpsertState(sol, st)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert state: %w", err)
	}
	return nil
}

func (s *Store) RemoveState(ctx context.Context, solution, state string) error {
	err := s.mutate(ctx, solution, func(sol *domain.Solution) error {
		RemoveState(sol, state)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove state: %w", err)
	}
	return nil
}

func (s *Store) UpdateStatePosition(ctx context.Context, solution, state string, x, y float64) error {
	res, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": solution, "states.name": state},
		bson.M{"$set": bson.M{"states.$.x": x, "states.$.y": y, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update state position: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update state position %s/%s: %w", solution, state, domain.ErrStateNotFound)
	}
	return nil
}

func (s *Store) UpdateSlotAngle(ctx context.Context, solution, state string, slot int, angle float64) error {
	err := s.mutate(ctx, solution, func(sol *domain.Solution) error {
		for i := range sol.States {
			if sol.States[i].Name != state {
				continue
			}
			if sl, ok := sol.States[i].Slot(slot); ok {
				sl.Angle = domain.NormalizeAngle(angle)
				return nil
			}
			return fmt.Errorf("slot %s/%d: %w", state, slot, domain.ErrSlotNotFound)
		}
		return fmt.Errorf("state %q: %w", state, domain.ErrStateNotFound)
	})
	if err != nil {
		return fmt.Errorf("update slot angle: %w", err)
	}
	return nil
}

func (s *Store) AddConnector(ctx context.Context, solution string, c *domain.Connector) error {
	res, err := s.coll.UpdateOne(ctx, byName(solution),
		bson.M{
			"$push": bson.M{"connectors": c},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		})
	if err != nil {
		return fmt.Errorf("add connector: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("add connector: solution %q: %w", solution, domain.ErrSolutionNotFound)
	}
	return nil
}

func (s *Store) RemoveConnector(ctx context.Context, solution, id string) error {
	res, err := s.coll.UpdateOne(ctx, byName(solution),
		bson.M{
			"$pull": bson.M{"connectors": bson.M{"id": id}},
			"$set":  bson.M{"updatedAt": time.Now().UTC()},
		})
	if err != nil {
		return fmt.Errorf("remove connector: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("remove connector: solution %q: %w", solution, domain.ErrSolutionNotFound)
	}
	return nil
}

func (s *Store) PruneOrphanConnectors(ctx context.Context, solution string) (int, error) {
	var removed int
	err := s.mutate(ctx, solution, func(sol *domain.Solution) error {
		removed = PruneOrphans(sol)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("prune connectors: %w", err)
	}
	return removed, nil
}

// ── Document edits ─────────────────────────────────────────

// UpsertState replaces the state with the same name in place or appends it.
func UpsertState(sol *domain.Solution, st *domain.State) {
	c := st.Clone()
	for i := range sol.States {
		if sol.States[i].Name == st.Name {
			sol.States[i] = *c
			return
		}
	}
	sol.States = append(sol.States, *c)
}

// RemoveState drops a state and every connector touching it.
func RemoveState(sol *domain.Solution, state string) {
	states := sol.States[:0]
	for _, st := range sol.States {
		if st.Name != state {
			states = append(states, st)
		}
	}
	sol.States = states
	conns := sol.Connectors[:0]
	for _, c := range sol.Connectors {
		if !c.Touches(state) {
			conns = append(conns, c)
		}
	}
	sol.Connectors = conns
}

// PruneOrphans drops connectors whose endpoint slot does not exist and
// returns how many were dropped.
func PruneOrphans(sol *domain.Solution) int {
	slots := make(map[domain.SlotRef]bool)
	for _, st := range sol.States {
		for _, sl := range st.Slots {
			slots[domain.SlotRef{State: st.Name, Index: sl.Index}] = true
		}
	}
	kept := sol.Connectors[:0]
	for _, c := range sol.Connectors {
		if slots[c.Source()] && slots[c.Sink()] {
			kept = append(kept, c)
		}
	}
	removed := len(sol.Connectors) - len(kept)
	sol.Connectors = kept
	return removed
}
