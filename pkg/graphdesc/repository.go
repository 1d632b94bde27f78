package graphdesc

import (
	"bytes"
	"fmt"

	"go.etcd.io/bbolt"
)

var graphsBucket = []byte("graphs")

// Repository is a bbolt-backed store of named Graphs. spec.md leaves
// "repository lookup" as an external collaborator the core does not
// implement; Repository is one concrete, optional backing for it —
// nothing in pkg/node or pkg/app depends on it.
type Repository struct {
	db *bbolt.DB
}

// OpenRepository opens (creating if absent) a bbolt database at path
// and ensures the graphs bucket exists.
func OpenRepository(path string) (*Repository, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(graphsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init repository: %w", err)
	}
	return &Repository{db: db}, nil
}

// Close releases the underlying database file.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Put serializes g as YAML and stores it under g.Name, overwriting any
// existing graph of the same name.
func (r *Repository) Put(g *Graph) error {
	var buf bytes.Buffer
	if err := g.Encode(&buf); err != nil {
		return err
	}
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(graphsBucket).Put([]byte(g.Name), buf.Bytes())
	})
}

// Get loads the graph stored under name.
func (r *Repository) Get(name string) (*Graph, error) {
	var g *Graph
	err := r.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(graphsBucket).Get([]byte(name))
		if raw == nil {
			return fmt.Errorf("no graph named %q", name)
		}
		decoded, err := Decode(bytes.NewReader(raw))
		if err != nil {
			return err
		}
		g = decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Delete removes the graph stored under name. It is not an error to
// delete a name that does not exist.
func (r *Repository) Delete(name string) error {
	return r.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(graphsBucket).Delete([]byte(name))
	})
}

// List returns the names of every stored graph.
func (r *Repository) List() ([]string, error) {
	var names []string
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(graphsBucket).ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
