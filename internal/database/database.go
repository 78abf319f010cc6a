// Package database opens the store selected by the connection string scheme.
package database

import (
	"context"
	"fmt"
	"log"
	"net/url"

	"github.com/dromkey/todolist/internal/store"
	"github.com/dromkey/todolist/internal/store/memstore"
	"github.com/dromkey/todolist/internal/store/mongostore"
	"github.com/dromkey/todolist/internal/store/pgstore"
)

// Open understands memory://, mongodb://, mongodb+srv://, postgres:// and
// postgresql://. dbName only applies to MongoDB, where the URI path is
// commonly used for the auth database instead.
func Open(ctx context.Context, uri, dbName string) (store.Store, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid storage connection string: %w", err)
	}
	switch u.Scheme {
	case "memory":
		log.Println("using in-memory store; data is lost on restart")
		return memstore.New(), nil
	case "mongodb", "mongodb+srv":
		s, err := mongostore.Connect(ctx, uri, dbName)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "postgresql":
		s, err := pgstore.Open(ctx, uri)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage scheme %q", u.Scheme)
	}
}
