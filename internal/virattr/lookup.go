package virattr

import (
	"context"
	"fmt"

	"github.com/mreiling/idprov/internal/connector"
)

// Lookup resolves virtual attributes through the cache, loading misses
// with a live connector read of the subject's object on the owning
// resource.
type Lookup struct {
	cache *Cache
	conns map[string]connector.Connector
}

// NewLookup binds the cache to the connectors of the resources that own
// virtual attributes.
func NewLookup(cache *Cache, conns map[string]connector.Connector) *Lookup {
	return &Lookup{cache: cache, conns: conns}
}

// Lookup implements the mapping resolver's virtual attribute source.
// An absent object resolves to no values, not an error.
func (l *Lookup) Lookup(ctx context.Context, resource, objectClass, subjectKey, attrName string) ([]string, error) {
	conn, ok := l.conns[resource]
	if !ok {
		return nil, fmt.Errorf("no connector for resource %q", resource)
	}
	return l.cache.Get(ctx, resource, objectClass, subjectKey, attrName, func(ctx context.Context) ([]string, error) {
		rec, err := conn.Get(ctx, objectClass, subjectKey)
		if err != nil {
			return nil, err
		}
		if rec == nil {
			return nil, nil
		}
		return rec.AttrValues(attrName), nil
	})
}
