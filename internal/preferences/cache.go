package preferences

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedStore is a read-through cache in front of another Store. Writes go to
// the backing store first and then drop the cached entry.
type CachedStore struct {
	backing Store
	cache   *cache.Cache
}

// NewCachedStore wraps backing with entries kept for ttl
func NewCachedStore(backing Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		backing: backing,
		cache:   cache.New(ttl, 2*ttl),
	}
}

// Get implements Store. Misses are not cached.
func (c *CachedStore) Get(ctx context.Context, fileName string) (*Preference, bool, error) {
	key := Key(fileName)
	if cached, found := c.cache.Get(key); found {
		return clonePreference(cached.(*Preference)), true, nil
	}

	pref, ok, err := c.backing.Get(ctx, fileName)
	if err != nil || !ok {
		return pref, ok, err
	}

	c.cache.SetDefault(key, clonePreference(pref))
	return pref, true, nil
}

// Save implements Store
func (c *CachedStore) Save(ctx context.Context, pref *Preference) error {
	if err := c.backing.Save(ctx, pref); err != nil {
		return err
	}
	c.cache.Delete(Key(pref.FileName))
	return nil
}

// Delete implements Store
func (c *CachedStore) Delete(ctx context.Context, fileName string) error {
	if err := c.backing.Delete(ctx, fileName); err != nil {
		return err
	}
	c.cache.Delete(Key(fileName))
	return nil
}

// List implements Store. Listings always come from the backing store.
func (c *CachedStore) List(ctx context.Context) ([]*Preference, error) {
	return c.backing.List(ctx)
}

// Close flushes the cache and closes the backing store
func (c *CachedStore) Close() error {
	c.cache.Flush()
	return c.backing.Close()
}

// Cached reports how many entries are currently cached
func (c *CachedStore) Cached() int {
	return c.cache.ItemCount()
}

func clonePreference(p *Preference) *Preference {
	out := *p
	out.Config.TypeValues = append([]string(nil), p.Config.TypeValues...)
	out.Config.PassthroughColumns = append([]string(nil), p.Config.PassthroughColumns...)
	return &out
}
