package backend

import (
	"context"
	"errors"
	"fmt"
)

// State is the outcome of probing a backend
type State string

const (
	StateOK      State = "ok"
	StateSkipped State = "skipped"
	StateFailed  State = "failed"
)

// Result reports the probe of a single backend
type Result struct {
	Name  string
	State State
	Err   error
}

func (r Result) String() string {
	if r.Err != nil && r.State == StateFailed {
		return fmt.Sprintf("%s: %s (%v)", r.Name, r.State, r.Err)
	}
	return fmt.Sprintf("%s: %s", r.Name, r.State)
}

// Probe opens and closes the database and the cache once each.
// Backends with an empty connection string are skipped.
func Probe(ctx context.Context, databaseURL, cacheURL string) []Result {
	return []Result{
		probe("database", func() error {
			db, err := OpenDatabase(ctx, databaseURL, DBOptions{MaxOpenConns: 1, MaxIdleConns: 1})
			if err != nil {
				return err
			}
			return db.Close()
		}),
		probe("cache", func() error {
			client, err := OpenCache(ctx, cacheURL)
			if err != nil {
				return err
			}
			return client.Close()
		}),
	}
}

// Failed reports whether any result is a failure.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.State == StateFailed {
			return true
		}
	}
	return false
}

func probe(name string, open func() error) Result {
	err := open()
	switch {
	case err == nil:
		return Result{Name: name, State: StateOK}
	case errors.Is(err, ErrNotConfigured):
		return Result{Name: name, State: StateSkipped}
	default:
		return Result{Name: name, State: StateFailed, Err: err}
	}
}
