// Package payload turns frames into compact byte payloads and back.
//
// Compress encodes a frame with the configured codec (Arrow IPC by default)
// and compresses the encoding (gzip by default). Neither direction returns a
// Go error: every failure is logged and answered with a fallback value whose
// Degraded flag is set and whose Err field carries the cause.
package payload

import (
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/ajitpratap0/econdash/pkg/codec"
	"github.com/ajitpratap0/econdash/pkg/compression"
	"github.com/ajitpratap0/econdash/pkg/errors"
	"github.com/ajitpratap0/econdash/pkg/frame"
	"github.com/ajitpratap0/econdash/pkg/logger"
)

// Options configures a Compressor. Zero values select the defaults.
type Options struct {
	// Codec is the primary serialization; default Arrow IPC.
	Codec codec.Codec
	// Fallback is used when Codec fails; default JSON.
	Fallback codec.Codec
	// Algorithm defaults to gzip.
	Algorithm compression.Algorithm
	// Level defaults to compression.Default.
	Level  compression.Level
	Logger *zap.Logger
}

// Payload is the outcome of Compress.
type Payload struct {
	Data []byte
	// Compressed is false when Data is a bare encoding.
	Compressed bool
	Algorithm  compression.Algorithm
	Codec      string
	Degraded   bool
	Err        error
}

// Compressor converts frames to payloads. It is safe for concurrent use.
type Compressor struct {
	codec    codec.Codec
	fallback codec.Codec
	comp     compression.Compressor
	framed   map[compression.Algorithm]compression.Compressor
	logger   *zap.Logger
}

// New creates a Compressor.
func New(opts Options) (*Compressor, error) {
	if opts.Codec == nil {
		opts.Codec = codec.Arrow(nil)
	}
	if opts.Fallback == nil {
		opts.Fallback = codec.JSON()
	}
	if opts.Algorithm == "" {
		opts.Algorithm = compression.Gzip
	}

	comp, err := compression.NewCompressor(&compression.Config{Algorithm: opts.Algorithm, Level: opts.Level})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid payload compression")
	}

	// Decoders for every format Detect recognizes, so payloads written
	// under another configuration still open.
	framed := make(map[compression.Algorithm]compression.Compressor)
	for _, alg := range []compression.Algorithm{compression.Gzip, compression.Zstd, compression.LZ4} {
		if alg == opts.Algorithm {
			framed[alg] = comp
			continue
		}
		c, err := compression.NewCompressor(&compression.Config{Algorithm: alg})
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create decoder")
		}
		framed[alg] = c
	}

	return &Compressor{
		codec:    opts.Codec,
		fallback: opts.Fallback,
		comp:     comp,
		framed:   framed,
		logger:   logger.Named(opts.Logger, "payload"),
	}, nil
}

// Algorithm returns the configured compression algorithm.
func (c *Compressor) Algorithm() compression.Algorithm { return c.comp.Algorithm() }

// Compress encodes and compresses f.
//
// If compression fails the bare encoding is returned. If encoding fails the
// frame is encoded with the fallback codec and left uncompressed. If that
// fails too, Data is empty.
func (c *Compressor) Compress(f *frame.Frame) Payload {
	if f == nil {
		f = frame.Empty()
	}

	encoded, err := c.codec.Encode(f)
	if err != nil {
		encErr := errors.Wrap(err, errors.ErrorTypeSerialization, "failed to encode frame")
		c.logger.Error("payload encoding failed, using fallback codec",
			zap.String("codec", c.codec.Name()),
			zap.String("fallback", c.fallback.Name()),
			zap.Error(err))

		encoded, err = c.fallback.Encode(f)
		if err != nil {
			c.logger.Error("fallback encoding failed",
				zap.String("codec", c.fallback.Name()),
				zap.Error(err))
			return Payload{
				Data:     []byte{},
				Degraded: true,
				Err:      stderrors.Join(encErr, errors.Wrap(err, errors.ErrorTypeSerialization, "fallback encoding failed")),
			}
		}
		return Payload{
			Data:      encoded,
			Algorithm: compression.None,
			Codec:     c.fallback.Name(),
			Degraded:  true,
			Err:       encErr,
		}
	}

	packed, err := c.comp.Compress(encoded)
	if err != nil {
		c.logger.Error("payload compression failed, storing uncompressed",
			zap.String("algorithm", string(c.comp.Algorithm())),
			zap.Error(err))
		return Payload{
			Data:      encoded,
			Algorithm: compression.None,
			Codec:     c.codec.Name(),
			Degraded:  true,
			Err:       errors.Wrap(err, errors.ErrorTypeCompression, "failed to compress payload"),
		}
	}

	return Payload{
		Data:       packed,
		Compressed: c.comp.Algorithm() != compression.None,
		Algorithm:  c.comp.Algorithm(),
		Codec:      c.codec.Name(),
	}
}

// Decompress reverses Compress.
//
// Input that is not compressed, or whose decompression fails, is read as a
// bare encoding, first with the primary codec and then with the fallback.
// When nothing can read it the result is an empty frame.
func (c *Compressor) Decompress(data []byte) frame.Result {
	raw, decompErr := c.unpack(data)
	if decompErr != nil {
		c.logger.Error("payload decompression failed, reading as uncompressed",
			zap.Int("bytes", len(data)),
			zap.Error(decompErr))
	}

	f, err := c.codec.Decode(raw)
	if err == nil {
		if decompErr != nil {
			return frame.Degrade(f, decompErr)
		}
		return frame.OK(f)
	}
	primaryErr := errors.Wrap(err, errors.ErrorTypeSerialization, "failed to decode payload")

	f, err = c.fallback.Decode(raw)
	if err == nil {
		c.logger.Error("payload decoded with fallback codec",
			zap.String("codec", c.fallback.Name()),
			zap.NamedError("primary_error", primaryErr))
		return frame.Degrade(f, stderrors.Join(decompErr, primaryErr))
	}

	cause := stderrors.Join(decompErr, primaryErr,
		errors.Wrap(err, errors.ErrorTypeSerialization, "fallback decoding failed"))
	c.logger.Error("payload unreadable, returning empty frame",
		zap.Int("bytes", len(data)),
		zap.Error(cause))
	return frame.Degrade(frame.Empty(), cause)
}

// unpack undoes compression. It returns the input itself, and a non-nil
// error, when the input is not a payload of a known compressed format. A
// nil error with unchanged input means the configured algorithm is None.
func (c *Compressor) unpack(data []byte) ([]byte, error) {
	alg := compression.Detect(data)
	if alg == compression.None {
		switch c.comp.Algorithm() {
		case compression.None:
			return data, nil
		case compression.S2, compression.Snappy:
			// Block formats carry no magic; try the configured decoder.
			alg = c.comp.Algorithm()
		default:
			return data, errors.Newf(errors.ErrorTypeCompression, "payload is not %s compressed", c.comp.Algorithm())
		}
	}

	dec, ok := c.framed[alg]
	if !ok {
		dec = c.comp
	}
	out, err := dec.Decompress(data)
	if err != nil {
		return data, errors.Wrap(err, errors.ErrorTypeCompression, "failed to decompress payload").
			WithDetail("algorithm", string(alg))
	}
	return out, nil
}
