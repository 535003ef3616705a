package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/schemadiagram/internal/filex"
	"github.com/dmitrijs2005/schemadiagram/internal/server/models"
	"golang.org/x/sync/singleflight"
)

// fetchFunc opens a remote object. found == false means the object does
// not exist.
type fetchFunc func(ctx context.Context, name string) (rc io.ReadCloser, found bool, err error)

// localCache downloads remote objects into dir, one download per object at
// a time.
type localCache struct {
	dir   string
	group singleflight.Group
}

func newLocalCache(dir string) (*localCache, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cache dir: %w", err)
	}
	return &localCache{dir: abs}, nil
}

type cacheResult struct {
	path  string
	found bool
}

func (c *localCache) fetch(ctx context.Context, key models.DiagramKey, kind FileKind, name string, open fetchFunc) (string, bool, error) {
	v, err, _ := c.group.Do(name, func() (any, error) {
		rc, found, err := open(ctx, name)
		if err != nil {
			return nil, err
		}
		if !found {
			return cacheResult{}, nil
		}
		defer rc.Close()

		p := LocalPath(c.dir, key, kind)
		if _, err := filex.WriteAtomic(p, rc); err != nil {
			return nil, err
		}
		return cacheResult{path: p, found: true}, nil
	})
	if err != nil {
		return "", false, fmt.Errorf("fetch %s: %w", name, err)
	}

	res := v.(cacheResult)
	return res.path, res.found, nil
}
