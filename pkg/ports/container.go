package ports

// ContainerWriter writes encoded streams into a single container file.
// Implementations need not be safe for concurrent use; callers serialize access.
type ContainerWriter interface {
	// AddStream registers an output stream and returns its index.
	AddStream(format Format) (int, error)

	// SetInputFormat declares the format samples for the stream will arrive in.
	SetInputFormat(stream int, format Format) error

	// BeginWriting must be called after all streams are added and before any sample.
	BeginWriting() error

	WriteSample(stream int, sample EncodedSample) error

	// Finalize flushes buffered samples and indices. Samples already written stay written.
	Finalize() error
}
