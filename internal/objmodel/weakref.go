package objmodel

import "fmt"

// Weak is the payload of a weak reference object. The referent pointer does
// not contribute to the referent's reference count.
type Weak struct {
	referent *Object

	// Callback, when non-nil, runs after the referent dies. The collector
	// suppresses it when the weak reference itself dies in the same
	// collection.
	Callback func(wr *Object) error
}

// NewWeak binds a weak payload to a referent and registers the weak
// reference object wr against it. Registration is refused when the
// referent's type does not declare weak reference support: the collector
// only clears weak references through that flag, and an unclearable
// reference would dangle once the referent dies.
func NewWeak(wr, referent *Object, callback func(*Object) error) (*Weak, error) {
	if referent.Type == nil || !referent.Type.SupportsWeakRefs {
		name := "untyped"
		if referent.Type != nil {
			name = referent.Type.Name
		}
		return nil, fmt.Errorf("objmodel: weak reference to %s: type does not support weak references", name)
	}
	w := &Weak{referent: referent, Callback: callback}
	wr.Weak = w
	referent.weakList = append(referent.weakList, wr)
	return w, nil
}

// Get returns the referent, or nil once the reference was cleared.
func (w *Weak) Get() *Object { return w.referent }

// ClearRef severs the referent pointer without invoking the callback.
// Idempotent. A cleared weak reference must never observe a partially
// torn-down referent.
func (w *Weak) ClearRef() { w.referent = nil }

// WeakRefs returns the weak reference objects registered against o.
func (o *Object) WeakRefs() []*Object { return o.weakList }

// ClearWeakRefs clears every weak reference registered against o and drops
// the registrations. Callbacks are not invoked here; the caller decides
// which ones to honor.
func (o *Object) ClearWeakRefs() {
	for _, wr := range o.weakList {
		if wr.Weak != nil {
			wr.Weak.ClearRef()
		}
	}
	o.weakList = nil
}

// UnregisterWeakRef removes a single weak reference registration, used when
// a weak reference object dies before its referent.
func (o *Object) UnregisterWeakRef(wr *Object) {
	for i, w := range o.weakList {
		if w == wr {
			o.weakList = append(o.weakList[:i], o.weakList[i+1:]...)
			return
		}
	}
}
