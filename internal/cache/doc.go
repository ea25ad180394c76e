// Package cache stores model responses keyed by a digest of the request.
//
// A Store has plain get/put semantics and no expiry. Implementations:
//   - Memory: bounded LRU (hashicorp/golang-lru), used as a front tier
//   - Badger: persistent BadgerDB directory
//   - storage.SQLiteStorage.Cache(): the llm_cache table in the index database
//
// Tiered combines a front and back store. Key builds keys from request parts:
//
//	key := cache.Key(baseURL, endpoint, string(payload))
package cache
