// Package dramabox is the core of a multi-language short-drama web front-end.
//
// It holds the supported-language tables, the typed errors shared by the
// sub-packages, cache key generation and the cache-aside FetchGateway that
// shields the upstream content API.
//
// Basic usage:
//
//	import (
//	    "context"
//	    "github.com/ZaguanLabs/dramabox"
//	    "github.com/ZaguanLabs/dramabox/cache"
//	    "github.com/ZaguanLabs/dramabox/upstream"
//	)
//
//	func main() {
//	    client := upstream.NewClient(upstream.Config{BaseURL: "https://api.megawe.net"})
//	    gw := dramabox.NewGateway(cache.NewDefaultRegistry())
//
//	    key := dramabox.GenerateCacheKey("detail", map[string]any{"bookId": "42", "lang": "en"})
//	    data, status, err := gw.WithCache(context.Background(), cache.Detail, key,
//	        func(ctx context.Context) (json.RawMessage, error) {
//	            return client.Get(ctx, "detail", url.Values{"bookId": {"42"}, "lang": {"en"}})
//	        })
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(status, string(data))
//	}
package dramabox
