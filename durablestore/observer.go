package durablestore

// OpType is the marker the external OT type registry resolves a typeName
// to. Its interior is opaque to this layer.
type OpType any

// TypeRegistry is the narrow seam onto the external OT type registry
// (spec §1, "deliberately out of scope"). The coordinator only needs to
// look a type up by name when restoring a document.
type TypeRegistry interface {
	Lookup(name string) (OpType, bool)
}

// MapTypeRegistry is a trivial in-memory TypeRegistry, useful in tests and
// as a default when the collaborator layer has nothing more specific.
type MapTypeRegistry map[string]OpType

func (r MapTypeRegistry) Lookup(name string) (OpType, bool) {
	t, ok := r[name]
	return t, ok
}

// DocObserver is the narrow, duck-typed surface restoreDocFromDurableRecord
// needs from the live in-memory document object (spec §6, "Observer
// interface for collaborator layer"). The core depends on this rather than
// the full live-doc surface.
type DocObserver interface {
	Collection() string
	ID() string

	SetVersion(v any)
	SetPreventCompose(v bool)
	SetSubmitSource(v bool)
	SetPendingOps(ops []OpRecord)

	// SetOpErrorCallback attaches cb to every op installed by the following
	// SetPendingOps call, replacing whatever callback array each op had at
	// submit time (unreachable after a process restart). Called before
	// SetPendingOps during restore (spec §4.7).
	SetOpErrorCallback(cb func(error))

	// SetData is the internal hook that installs the restored data tree.
	SetData(data any)
	// SetType consults the external type registry and installs the
	// resolved OpType.
	SetType(typeName string, registry TypeRegistry)

	// EmitRestore signals that restoration has completed.
	EmitRestore()
}
