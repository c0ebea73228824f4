package cache

import "fmt"

// MarketsKey builds the deterministic cache key for a markets query.
// Format: markets:<vs_currency>:<per_page>:<page>
func MarketsKey(vsCurrency string, perPage, page int) string {
	return fmt.Sprintf("markets:%s:%d:%d", vsCurrency, perPage, page)
}
