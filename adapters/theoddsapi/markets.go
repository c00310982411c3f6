package theoddsapi

// featuredMarkets are the game-level markets served by the bulk odds
// endpoint. Anything else is a per-event market and must go through the
// event odds endpoint, one request per event.
var featuredMarkets = map[string]bool{
	"h2h":     true,
	"spreads": true,
	"totals":  true,
}

// splitMarkets partitions the requested markets into the bulk featured
// set and the per-event props set. An all-props request still fetches
// h2h, since the bulk call is what discovers which events exist.
func splitMarkets(markets []string) (featured, props []string) {
	for _, m := range markets {
		if featuredMarkets[m] {
			featured = append(featured, m)
		} else {
			props = append(props, m)
		}
	}
	if len(featured) == 0 {
		featured = []string{"h2h"}
	}
	return featured, props
}
