package bind_group_provider

// BufferWrite describes a single GPU buffer write operation targeting a specific binding
// on a BindGroupProvider at a given byte offset.
type BufferWrite struct {
	Provider BindGroupProvider
	Binding  int
	Offset   uint64
	Data     []byte
}

// End returns the byte offset just past the written data.
func (w BufferWrite) End() uint64 {
	return w.Offset + uint64(len(w.Data))
}

// Fits reports whether the write lies within the provider's allocated buffer.
func (w BufferWrite) Fits() bool {
	if w.Provider == nil {
		return false
	}
	return w.End() <= w.Provider.BufferSize(w.Binding)
}
