package redis

import "github.com/redis/rueidis"

// NewStoreForTest wraps a rueidis client (usually a mock) with the default key prefix.
func NewStoreForTest(c rueidis.Client) *Store {
	return newStore(c, "")
}

// NewStoreForTestWithPrefix wraps a rueidis client with an explicit key prefix.
func NewStoreForTestWithPrefix(c rueidis.Client, prefix string) *Store {
	return newStore(c, prefix)
}
