package audit

// MultiRecorder fans each event out to several backends. One backend failing
// does not stop the others; the first error is returned.
type MultiRecorder struct {
	recorders []Recorder
}

// NewMultiRecorder creates a recorder that writes to every backend
func NewMultiRecorder(recorders ...Recorder) *MultiRecorder {
	return &MultiRecorder{recorders: recorders}
}

// Record writes the event to all backends
func (m *MultiRecorder) Record(rec Record) error {
	var firstErr error
	for _, r := range m.recorders {
		if err := r.Record(rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes all backends
func (m *MultiRecorder) Close() error {
	var firstErr error
	for _, r := range m.recorders {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MemoryRecorder collects events in memory for tests
type MemoryRecorder struct {
	Records []Record
}

// Record appends the event
func (m *MemoryRecorder) Record(rec Record) error {
	m.Records = append(m.Records, rec)
	return nil
}

// Close is a no-op
func (m *MemoryRecorder) Close() error {
	return nil
}
