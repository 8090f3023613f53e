// Package phrasecache maps reusable utterances (greetings, farewells, a
// curated phrase set) to already-synthesized audio URLs so the TTS
// vendor is not called twice for the same text.
package phrasecache

import (
	"container/list"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Categories returned by ShouldCache.
const (
	CategoryGreeting = "greeting"
	CategoryFarewell = "farewell"
)

// cacheablePrefixes is the curated list of phrase openings that are
// admitted to the cache, matched case-insensitively.
var cacheablePrefixes = []struct {
	prefix   string
	category string
}{
	{"здравствуйте", CategoryGreeting},
	{"добрый день", CategoryGreeting},
	{"добрый вечер", CategoryGreeting},
	{"доброе утро", CategoryGreeting},
	{"вас беспокоит", CategoryGreeting},
	{"до свидания", CategoryFarewell},
	{"спасибо за разговор", CategoryFarewell},
	{"всего доброго", CategoryFarewell},
	{"хорошего дня", CategoryFarewell},
}

// URLStore is the persistent tier behind the in-memory map.
type URLStore interface {
	PutCached(key string, data []byte) (string, error)
	CachedURL(key string) string
}

// Cache is an LRU map of (normalized text, voice) → audio URL.
type Cache struct {
	store URLStore
	size  int
	log   zerolog.Logger

	mu      sync.Mutex
	entries map[string]*list.Element // key → lru element
	lru     *list.List               // front = most recent
}

type entry struct {
	key string
	url string
}

func New(store URLStore, size int, log zerolog.Logger) *Cache {
	if size < 1 {
		size = 1
	}
	return &Cache{
		store:   store,
		size:    size,
		log:     log,
		entries: make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// ShouldCache returns the phrase category, or "" when the text is not
// cacheable.
func ShouldCache(text string) string {
	t := strings.ToLower(strings.TrimSpace(text))
	for _, p := range cacheablePrefixes {
		if strings.HasPrefix(t, p.prefix) {
			return p.category
		}
	}
	return ""
}

// Key derives the stable cache key for a (text, voice) pair. The same
// pair produces the same key in any process.
func Key(text, voice string) string {
	sum := md5.Sum([]byte(normalize(text) + "-" + voice))
	return hex.EncodeToString(sum[:])
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// Lookup returns the cached audio URL for a phrase, checking the
// in-memory map first and the persistent store second. Returns "" on
// miss.
func (c *Cache) Lookup(text, voice string) string {
	key := Key(text, voice)

	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.lru.MoveToFront(el)
		url := el.Value.(*entry).url
		c.mu.Unlock()
		return url
	}
	c.mu.Unlock()

	url := c.store.CachedURL(key)
	if url != "" {
		c.admit(key, url)
	}
	return url
}

// Store admits a synthesized phrase to the cache. Non-cacheable phrases
// are rejected: admission implies ShouldCache(text) != "".
func (c *Cache) Store(text string, data []byte, voice string) (string, bool) {
	if ShouldCache(text) == "" {
		return "", false
	}

	key := Key(text, voice)
	url, err := c.store.PutCached(key, data)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache store failed")
		return "", false
	}

	c.admit(key, url)
	return url, true
}

// Len reports the in-memory entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) admit(key, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.lru.MoveToFront(el)
		el.Value.(*entry).url = url
		return
	}

	el := c.lru.PushFront(&entry{key: key, url: url})
	c.entries[key] = el

	for len(c.entries) > c.size {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.lru.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
}
