package telemetry

// Recorder receives attempt records. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Record(AttemptRecord)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(AttemptRecord)

// Record calls f(r).
func (f RecorderFunc) Record(r AttemptRecord) { f(r) }

// Trimmer is anything that can drop records beyond its retention bound.
type Trimmer interface {
	Trim() int
}

type multi []Recorder

func (m multi) Record(r AttemptRecord) {
	for _, rec := range m {
		rec.Record(r)
	}
}

// Multi fans each record out to every non-nil recorder in order.
func Multi(recorders ...Recorder) Recorder {
	out := make(multi, 0, len(recorders))
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

// Nop discards every record.
var Nop Recorder = RecorderFunc(func(AttemptRecord) {})
