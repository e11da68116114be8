package chromem

type Option func(*Options)

type Options struct {
	// Compress gzips persisted documents.
	Compress bool

	// MinSimilarity drops search results below this cosine similarity.
	// Default: -1 (keep everything up to the limit).
	MinSimilarity float32
}

func WithCompression(compress bool) Option {
	return func(o *Options) {
		o.Compress = compress
	}
}

func WithMinSimilarity(threshold float32) Option {
	return func(o *Options) {
		o.MinSimilarity = threshold
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		MinSimilarity: -1,
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
