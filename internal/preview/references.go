// Package preview produces the confirmation preview shown before an upload is committed.
package preview

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"photogallery/internal/logging"
	"photogallery/internal/models"
)

// Reference points at the raw bytes of a pending upload without copying them.
type Reference struct {
	File     models.FileHandle
	MIMEType string
}

// References is the store of transient reference URLs. Entries expire after the
// configured TTL even when their owner never revokes them.
type References struct {
	c *cache.Cache
}

// NewReferences creates a reference store whose entries live for ttl.
func NewReferences(ttl time.Duration) *References {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	c := cache.New(ttl, ttl/2)
	c.OnEvicted(func(token string, _ interface{}) {
		logging.Log.Debugf("Preview reference %s released", token)
	})
	return &References{c: c}
}

// Register stores a reference and returns its token.
func (r *References) Register(ref Reference) string {
	token := uuid.NewString()
	r.c.Set(token, ref, cache.DefaultExpiration)
	return token
}

// Resolve looks up a live reference.
func (r *References) Resolve(token string) (Reference, bool) {
	v, ok := r.c.Get(token)
	if !ok {
		return Reference{}, false
	}
	return v.(Reference), true
}

// Revoke releases a reference. Unknown tokens are ignored.
func (r *References) Revoke(token string) {
	r.c.Delete(token)
}

// Len reports the number of live references.
func (r *References) Len() int {
	return r.c.ItemCount()
}
