package trace

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"

	"github.com/vmihailenco/msgpack/v5"
)

// Binary format constants
const (
	MagicBytes    = "NSTR"
	FormatVersion = 1

	headerSize = 24

	// MaxPayloadSize bounds a decompressed payload.
	MaxPayloadSize = 256 << 20
)

// Header for binary format
type Header struct {
	Magic    [4]byte
	Version  uint16
	Flags    uint16
	RunIDLen uint32
	DataLen  uint64
	Checksum uint32
}

const (
	FlagCompressed uint16 = 1 << 0
)

var (
	ErrTooShort         = errors.New("trace: data too short")
	ErrBadMagic         = errors.New("trace: invalid magic bytes")
	ErrUnsupported      = errors.New("trace: unsupported format version")
	ErrChecksumMismatch = errors.New("trace: checksum mismatch")
	ErrTooLarge         = errors.New("trace: payload exceeds size limit")
)

// Codec handles encoding/decoding of traces
type Codec struct {
	compress   bool
	compLevel  int
	maxPayload int64
}

// NewCodec creates a new codec
func NewCodec(compress bool) *Codec {
	return &Codec{
		compress:   compress,
		compLevel:  gzip.BestSpeed,
		maxPayload: MaxPayloadSize,
	}
}

// Encode serializes a trace: header, run ID, then the msgpack payload,
// gzip-compressed when that makes it smaller.
func (c *Codec) Encode(t *Trace) ([]byte, error) {
	data, err := msgpack.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("trace: encoding payload: %w", err)
	}

	var flags uint16
	if c.compress {
		compressed, err := c.compressData(data)
		if err != nil {
			return nil, err
		}
		if len(compressed) < len(data) {
			data = compressed
			flags |= FlagCompressed
		}
	}

	header := Header{
		Version:  FormatVersion,
		Flags:    flags,
		RunIDLen: uint32(len(t.RunID)),
		DataLen:  uint64(len(data)),
		Checksum: crc32.ChecksumIEEE(data),
	}
	copy(header.Magic[:], MagicBytes)

	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, err
	}
	buf.WriteString(t.RunID)
	buf.Write(data)

	return buf.Bytes(), nil
}

// Decode deserializes the binary format produced by Encode.
func (c *Codec) Decode(raw []byte) (*Trace, error) {
	if len(raw) < headerSize {
		return nil, ErrTooShort
	}

	buf := bytes.NewReader(raw)

	var header Header
	if err := binary.Read(buf, binary.LittleEndian, &header); err != nil {
		return nil, err
	}
	if string(header.Magic[:]) != MagicBytes {
		return nil, ErrBadMagic
	}
	if header.Version > FormatVersion {
		return nil, ErrUnsupported
	}

	rest := uint64(len(raw) - headerSize)
	if header.DataLen > rest || uint64(header.RunIDLen) > rest-header.DataLen {
		return nil, ErrTooShort
	}

	runID := make([]byte, header.RunIDLen)
	if _, err := io.ReadFull(buf, runID); err != nil {
		return nil, fmt.Errorf("trace: reading run id: %w", err)
	}

	data := make([]byte, header.DataLen)
	if _, err := io.ReadFull(buf, data); err != nil {
		return nil, fmt.Errorf("trace: reading payload: %w", err)
	}

	if crc32.ChecksumIEEE(data) != header.Checksum {
		return nil, ErrChecksumMismatch
	}

	if header.Flags&FlagCompressed != 0 {
		decompressed, err := c.decompressData(data)
		if err != nil {
			return nil, err
		}
		data = decompressed
	}

	var t Trace
	if err := msgpack.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("trace: decoding payload: %w", err)
	}
	if t.RunID != string(runID) {
		return nil, fmt.Errorf("trace: run id mismatch: header %q, payload %q", runID, t.RunID)
	}
	return &t, nil
}

// WriteFile encodes t and writes it to path.
func (c *Codec) WriteFile(path string, t *Trace) error {
	data, err := c.Encode(t)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("trace: writing %s: %w", path, err)
	}
	return nil
}

// ReadFile reads and decodes the trace at path.
func (c *Codec) ReadFile(path string) (*Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trace: reading %s: %w", path, err)
	}
	return c.Decode(data)
}

// compressData compresses using gzip
func (c *Codec) compressData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, c.compLevel)
	if err != nil {
		return nil, err
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// decompressData decompresses gzip data, refusing anything that inflates
// past the payload limit.
func (c *Codec) decompressData(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("trace: decompressing payload: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, c.maxPayload+1))
	if err != nil {
		return nil, fmt.Errorf("trace: decompressing payload: %w", err)
	}
	if int64(len(out)) > c.maxPayload {
		return nil, ErrTooLarge
	}
	return out, nil
}
