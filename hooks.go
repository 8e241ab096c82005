package tiercache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
type Hooks interface {
	// An entry was deleted on read.
	// reason ∈ {"truncated", "corrupt"}
	SelfHeal(location, reason string)

	// A catalog was built (initialize or clear) with the given entry count.
	CatalogBuilt(root string, entries int)

	// A missing or unreadable sidecar was recreated from the store listing.
	MetaRebuilt(location string)

	// A sidecar without its data object was found and ignored.
	OrphanMeta(location string)

	// Multi copied key from one member to another.
	Backfill(key, from, to string)

	// Multi found copies of key that are not the same write.
	Mismatch(key string, copies int)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)         {}
func (NopHooks) CatalogBuilt(string, int)        {}
func (NopHooks) MetaRebuilt(string)              {}
func (NopHooks) OrphanMeta(string)               {}
func (NopHooks) Backfill(string, string, string) {}
func (NopHooks) Mismatch(string, int)            {}
