package area

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/crypto/blake2b"
)

// Tile file layout:
//
//	magic "WTIL" | version u8 | dim u16 LE | zstd(payload) | blake2b-256(payload)
//
// payload is the height plane (u16 LE), the water plane (u8) and the noise
// plane (i32 LE), each dim*dim cells in Store order.
const (
	codecVersion = 1
	headerLen    = 4 + 1 + 2
	sumLen       = blake2b.Size256
)

var codecMagic = [4]byte{'W', 'T', 'I', 'L'}

// MaxDimensions bounds the side of an area the codec accepts. It also caps
// how much memory a single tile may decompress into.
const MaxDimensions = 2048

var ErrCorruptTile = errors.New("corrupt tile data")

// Codec encodes areas to their persisted form. A Codec is safe for
// concurrent use.
type Codec struct {
	enc    *zstd.Encoder
	dec    *zstd.Decoder
	maxDim int
}

// NewCodec builds a codec. level maps onto zstd.EncoderLevelFromZstd; 0 picks
// the zstd default.
func NewCodec(level int) (*Codec, error) {
	return newCodec(level, MaxDimensions)
}

func newCodec(level, maxDim int) (*Codec, error) {
	encLevel := zstd.SpeedDefault
	if level > 0 {
		encLevel = zstd.EncoderLevelFromZstd(level)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(maxDim*maxDim*CellBytes)))
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &Codec{enc: enc, dec: dec, maxDim: maxDim}, nil
}

func (c *Codec) Close() {
	c.enc.Close()
	c.dec.Close()
}

// Encode serializes s.
func (c *Codec) Encode(s *Store) ([]byte, error) {
	if s.Dim <= 0 || s.Dim > c.maxDim {
		return nil, fmt.Errorf("encode area %s: invalid dimensions %d", s.Key, s.Dim)
	}
	payload := payloadOf(s)
	sum := blake2b.Sum256(payload)

	var buf bytes.Buffer
	buf.Grow(headerLen + len(payload)/2 + sumLen)
	buf.Write(codecMagic[:])
	buf.WriteByte(codecVersion)
	var dim [2]byte
	binary.LittleEndian.PutUint16(dim[:], uint16(s.Dim))
	buf.Write(dim[:])

	out := c.enc.EncodeAll(payload, buf.Bytes())
	return append(out, sum[:]...), nil
}

// Decode rebuilds the area key from data. dim must match the dimensions the
// tile was written with.
func (c *Codec) Decode(key Key, dim int, data []byte) (*Store, error) {
	if len(data) < headerLen+sumLen {
		return nil, fmt.Errorf("decode area %s: %w: %d bytes", key, ErrCorruptTile, len(data))
	}
	if !bytes.Equal(data[:4], codecMagic[:]) {
		return nil, fmt.Errorf("decode area %s: %w: bad magic", key, ErrCorruptTile)
	}
	if v := data[4]; v != codecVersion {
		return nil, fmt.Errorf("decode area %s: %w: unsupported version %d", key, ErrCorruptTile, v)
	}
	if got := int(binary.LittleEndian.Uint16(data[5:7])); got != dim {
		return nil, fmt.Errorf("decode area %s: %w: dimensions %d, want %d", key, ErrCorruptTile, got, dim)
	}
	if dim <= 0 || dim > c.maxDim {
		return nil, fmt.Errorf("decode area %s: %w: dimensions %d exceed %d", key, ErrCorruptTile, dim, c.maxDim)
	}

	body := data[headerLen : len(data)-sumLen]
	payload, err := c.dec.DecodeAll(body, make([]byte, 0, dim*dim*CellBytes))
	if err != nil {
		return nil, fmt.Errorf("decode area %s: %w: %w", key, ErrCorruptTile, err)
	}
	if want := dim * dim * CellBytes; len(payload) != want {
		return nil, fmt.Errorf("decode area %s: %w: payload %d bytes, want %d", key, ErrCorruptTile, len(payload), want)
	}
	sum := blake2b.Sum256(payload)
	if !bytes.Equal(sum[:], data[len(data)-sumLen:]) {
		return nil, fmt.Errorf("decode area %s: %w: checksum mismatch", key, ErrCorruptTile)
	}

	s := New(key, dim)
	n := dim * dim
	off := 0
	for i := 0; i < n; i++ {
		s.Height[i] = binary.LittleEndian.Uint16(payload[off:])
		off += 2
	}
	copy(s.Water, payload[off:off+n])
	off += n
	for i := 0; i < n; i++ {
		s.Noise[i] = int32(binary.LittleEndian.Uint32(payload[off:]))
		off += 4
	}
	return s, nil
}

func payloadOf(s *Store) []byte {
	n := s.Dim * s.Dim
	payload := make([]byte, n*CellBytes)
	off := 0
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(payload[off:], s.Height[i])
		off += 2
	}
	copy(payload[off:], s.Water)
	off += n
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(payload[off:], uint32(s.Noise[i]))
		off += 4
	}
	return payload
}
