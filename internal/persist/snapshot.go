package persist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/forgelabs/ecsframe/ecs"
)

// ComponentCodec knows how to dump one component type's storage to JSON and
// load it back into a World. Grounded on the teacher's CharacterRepo
// bookmarks/known_spells JSONB columns (internal/persist/character_repo.go),
// which marshal a typed Go slice with encoding/json into a single column
// rather than modeling each field relationally — the same shape a snapshot
// of an arbitrary component type needs, since the snapshot table can't know
// the component's fields ahead of time.
type ComponentCodec struct {
	Name string
	Dump func(w *ecs.World) (json.RawMessage, error)
	Load func(w *ecs.World, data json.RawMessage) error
}

// ComponentCodecFor builds the codec for component type T, named name in
// the snapshot's component map. Dump walks the store's occupancy mask
// without draining it; Load re-inserts every entry into T's registered
// store, registering a dense one if T has never been referenced.
func ComponentCodecFor[T any](name string) ComponentCodec {
	return ComponentCodec{
		Name: name,
		Dump: func(w *ecs.World) (json.RawMessage, error) {
			store, ok := ecs.LookupComponentStore[T](w)
			if !ok {
				return json.Marshal([]ecs.Entry[T]{})
			}
			entries := []ecs.Entry[T]{}
			store.Mask().ForEach(func(i uint32) bool {
				v, ok := store.Get(i)
				if ok {
					entries = append(entries, ecs.Entry[T]{Index: i, Value: *v})
				}
				return true
			})
			return json.Marshal(entries)
		},
		Load: func(w *ecs.World, data json.RawMessage) error {
			var entries []ecs.Entry[T]
			if err := json.Unmarshal(data, &entries); err != nil {
				return fmt.Errorf("unmarshal component %s: %w", name, err)
			}
			store := ecs.ComponentStoreOrRegisterDense[T](w)
			for _, e := range entries {
				store.Insert(e.Index, e.Value)
			}
			return nil
		},
	}
}

// ResourceCodec knows how to dump and load a single resource type.
type ResourceCodec struct {
	Name string
	Dump func(w *ecs.World) (json.RawMessage, error)
	Load func(w *ecs.World, data json.RawMessage) error
}

// ResourceCodecFor builds the codec for resource type R, named name in the
// snapshot's resource map. Dump is a no-op producing null when R is absent.
func ResourceCodecFor[R any](name string) ResourceCodec {
	return ResourceCodec{
		Name: name,
		Dump: func(w *ecs.World) (json.RawMessage, error) {
			r, release, ok := ecs.ReadOptional[R](w.Resources())
			if !ok {
				return json.Marshal(nil)
			}
			defer release()
			return json.Marshal(r)
		},
		Load: func(w *ecs.World, data json.RawMessage) error {
			if string(data) == "null" || len(data) == 0 {
				return nil
			}
			var v R
			if err := json.Unmarshal(data, &v); err != nil {
				return fmt.Errorf("unmarshal resource %s: %w", name, err)
			}
			ecs.InsertResource(w.Resources(), v)
			return nil
		},
	}
}

// Snapshotter persists and rehydrates a World's declared resources and
// components against the world_snapshots table (SPEC_FULL.md §4.11),
// gated on config.DatabaseConfig.Enabled by the caller. The set of codecs
// is fixed at construction — only component and resource types the host
// process explicitly registers are ever written or read, matching how the
// teacher's repo-per-table pattern never attempts to persist a column it
// doesn't know about.
type Snapshotter struct {
	db         *DB
	components []ComponentCodec
	resources  []ResourceCodec
}

// NewSnapshotter returns a Snapshotter that will dump/load exactly the
// given component and resource codecs.
func NewSnapshotter(db *DB, components []ComponentCodec, resources []ResourceCodec) *Snapshotter {
	return &Snapshotter{db: db, components: components, resources: resources}
}

type snapshotBody struct {
	Resources  map[string]json.RawMessage `json:"resources"`
	Components map[string]json.RawMessage `json:"components"`
}

// Save dumps every registered resource and component codec and upserts the
// result under tick in world_snapshots.
func (s *Snapshotter) Save(ctx context.Context, w *ecs.World, tick int64) error {
	resources := make(map[string]json.RawMessage, len(s.resources))
	for _, c := range s.resources {
		data, err := c.Dump(w)
		if err != nil {
			return fmt.Errorf("dump resource %s: %w", c.Name, err)
		}
		resources[c.Name] = data
	}
	components := make(map[string]json.RawMessage, len(s.components))
	for _, c := range s.components {
		data, err := c.Dump(w)
		if err != nil {
			return fmt.Errorf("dump component %s: %w", c.Name, err)
		}
		components[c.Name] = data
	}

	resBlob, err := json.Marshal(resources)
	if err != nil {
		return fmt.Errorf("marshal resources: %w", err)
	}
	compBlob, err := json.Marshal(components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}

	_, err = s.db.Pool.Exec(ctx,
		`INSERT INTO world_snapshots (tick, resources, components)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (tick) DO UPDATE SET
		   taken_at = now(), resources = $2, components = $3`,
		tick, resBlob, compBlob,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot at tick %d: %w", tick, err)
	}
	return nil
}

// Load rehydrates w from the snapshot stored at tick, running every
// registered resource and component codec's Load against the stored blob.
// A codec named in s.components or s.resources but absent from the stored
// snapshot (e.g. the snapshot predates that codec being registered) is
// simply skipped.
func (s *Snapshotter) Load(ctx context.Context, w *ecs.World, tick int64) error {
	var resBlob, compBlob []byte
	err := s.db.Pool.QueryRow(ctx,
		`SELECT resources, components FROM world_snapshots WHERE tick = $1`, tick,
	).Scan(&resBlob, &compBlob)
	if err != nil {
		return fmt.Errorf("load snapshot at tick %d: %w", tick, err)
	}

	var resources map[string]json.RawMessage
	if err := json.Unmarshal(resBlob, &resources); err != nil {
		return fmt.Errorf("unmarshal resources blob: %w", err)
	}
	var components map[string]json.RawMessage
	if err := json.Unmarshal(compBlob, &components); err != nil {
		return fmt.Errorf("unmarshal components blob: %w", err)
	}

	for _, c := range s.resources {
		data, ok := resources[c.Name]
		if !ok {
			continue
		}
		if err := c.Load(w, data); err != nil {
			return err
		}
	}
	for _, c := range s.components {
		data, ok := components[c.Name]
		if !ok {
			continue
		}
		if err := c.Load(w, data); err != nil {
			return err
		}
	}
	return nil
}

// LatestTick returns the highest tick stored in world_snapshots, or
// (0, false) if the table is empty.
func (s *Snapshotter) LatestTick(ctx context.Context) (int64, bool, error) {
	var tick *int64
	err := s.db.Pool.QueryRow(ctx, `SELECT MAX(tick) FROM world_snapshots`).Scan(&tick)
	if err != nil {
		return 0, false, fmt.Errorf("query latest tick: %w", err)
	}
	if tick == nil {
		return 0, false, nil
	}
	return *tick, true, nil
}
