package ports

// EncoderInfo describes an encoder device.
type EncoderInfo struct {
	Index    int
	Name     string
	Backend  string // "mediafoundation", "ffmpeg"
	Hardware bool
	Codec    Codec
}

// EncoderOptions configures a transform created from an EncoderDevice.
type EncoderOptions struct {
	// Input is the raw format the transform will be fed.
	Input Format

	// Bitrate in bits per second. Zero selects the device default.
	Bitrate int
}

// EncoderDevice activates transforms for one encoder implementation.
type EncoderDevice interface {
	Info() EncoderInfo
	CreateTransform(opts EncoderOptions) (Transform, error)
}
