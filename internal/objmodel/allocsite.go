package objmodel

// Allocator bookkeeping. The slab allocator records the page and slot an
// object was carved from so that frees and heap enumeration do not need a
// global registry. The page is opaque here to keep the dependency direction
// allocator -> objmodel.

// SetAllocSite records the owning page and slot index.
func (o *Object) SetAllocSite(page any, slot int) {
	o.page = page
	o.slot = int32(slot)
}

// AllocSite returns the owning page and slot index.
func (o *Object) AllocSite() (page any, slot int) {
	return o.page, int(o.slot)
}
