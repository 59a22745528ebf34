package database

import (
	"github.com/bradfitz/gomemcache/memcache"
)

// NewMemcached builds the client used for the per-buyer order listing cache.
func NewMemcached(server string) *memcache.Client {
	return memcache.New(server)
}
