package gps

// LocationSink makes a decoded coordinate observable as the device location.
// Implementations are called synchronously from the polling worker.
type LocationSink interface {
	Inject(lat, lon float64, accuracyM float32, timestampMillis int64) error
}

// LogSink receives diagnostic text from the worker.
type LogSink interface {
	Emit(text string)
}

// LocationFunc adapts a function to LocationSink.
type LocationFunc func(lat, lon float64, accuracyM float32, timestampMillis int64) error

func (f LocationFunc) Inject(lat, lon float64, accuracyM float32, timestampMillis int64) error {
	return f(lat, lon, accuracyM, timestampMillis)
}

// LogFunc adapts a function to LogSink.
type LogFunc func(text string)

func (f LogFunc) Emit(text string) { f(text) }

// DiscardLog drops all diagnostic text.
var DiscardLog LogSink = LogFunc(func(string) {})
