// Package pmtiles writes and inspects single-directory PMTiles v3 archives.
//
// Only what the district tiler needs is here: Hilbert tile ids, the fixed
// header, a gzip-compressed root directory and metadata. Archives with leaf
// directories are not produced.
//
// Format: https://github.com/protomaps/PMTiles/blob/main/spec/v3/spec.md
package pmtiles

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/paulmach/orb"
)

// Compression is the compression applied to directories, metadata or tiles.
type Compression uint8

const (
	UnknownCompression Compression = 0
	NoCompression      Compression = 1
	Gzip               Compression = 2
)

// TileType is the format of individual tiles.
type TileType uint8

const (
	UnknownTileType TileType = 0
	Mvt             TileType = 1
)

// HeaderLen is the size of the fixed binary header.
const HeaderLen = 127

var magic = []byte("PMTiles")

// ErrNotPMTiles is returned when a header lacks the PMTiles magic.
var ErrNotPMTiles = errors.New("pmtiles: magic number not detected")

// Header is the v3 archive header.
type Header struct {
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom             uint8
	MaxZoom             uint8
	Bounds              orb.Bound
	Center              orb.Point
	CenterZoom          uint8
}

// Tile is one encoded tile.
type Tile struct {
	Z    uint8
	X, Y uint32
	Data []byte
}

type entry struct {
	tileID uint64
	offset uint64
	length uint32
}

// TileID converts z/x/y to the Hilbert tile id used to order archives.
func TileID(z uint8, x, y uint32) uint64 {
	acc := (uint64(1)<<(2*uint64(z)) - 1) / 3
	for s := uint32(1) << z >> 1; s > 0; s >>= 1 {
		var rx, ry uint64
		if x&s != 0 {
			rx = 1
		}
		if y&s != 0 {
			ry = 1
		}
		acc += ((3 * rx) ^ ry) * uint64(s) * uint64(s)
		if ry == 0 {
			if rx == 1 {
				x = s - 1 - x
				y = s - 1 - y
			}
			x, y = y, x
		}
	}
	return acc
}

// Write encodes tiles as an archive. Tile data must already be compressed
// with tileCompression.
func Write(w io.Writer, tiles []Tile, tileCompression Compression, metadata any, bounds orb.Bound, centerZoom uint8) (Header, error) {
	if len(tiles) == 0 {
		return Header{}, errors.New("pmtiles: no tiles to write")
	}

	sorted := make([]Tile, len(tiles))
	copy(sorted, tiles)
	sort.Slice(sorted, func(i, j int) bool {
		return TileID(sorted[i].Z, sorted[i].X, sorted[i].Y) < TileID(sorted[j].Z, sorted[j].X, sorted[j].Y)
	})

	h := Header{
		Clustered:           true,
		InternalCompression: Gzip,
		TileCompression:     tileCompression,
		TileType:            Mvt,
		MinZoom:             sorted[0].Z,
		MaxZoom:             sorted[0].Z,
		Bounds:              bounds,
		Center:              bounds.Center(),
		CenterZoom:          centerZoom,
	}

	entries := make([]entry, 0, len(sorted))
	var data bytes.Buffer
	for _, t := range sorted {
		entries = append(entries, entry{
			tileID: TileID(t.Z, t.X, t.Y),
			offset: uint64(data.Len()),
			length: uint32(len(t.Data)),
		})
		data.Write(t.Data)
		h.MinZoom = min(h.MinZoom, t.Z)
		h.MaxZoom = max(h.MaxZoom, t.Z)
	}

	root, err := encodeDirectory(entries)
	if err != nil {
		return Header{}, err
	}
	meta, err := encodeMetadata(metadata)
	if err != nil {
		return Header{}, err
	}

	h.RootOffset = HeaderLen
	h.RootLength = uint64(len(root))
	h.MetadataOffset = h.RootOffset + h.RootLength
	h.MetadataLength = uint64(len(meta))
	h.TileDataOffset = h.MetadataOffset + h.MetadataLength
	h.TileDataLength = uint64(data.Len())
	h.AddressedTilesCount = uint64(len(entries))
	h.TileEntriesCount = uint64(len(entries))
	h.TileContentsCount = uint64(len(entries))

	for _, part := range [][]byte{encodeHeader(h), root, meta, data.Bytes()} {
		if _, err := w.Write(part); err != nil {
			return Header{}, fmt.Errorf("pmtiles: write: %w", err)
		}
	}
	return h, nil
}

// ReadHeader reads the header at the start of an archive.
func ReadHeader(r io.ReaderAt) (Header, error) {
	b := make([]byte, HeaderLen)
	if _, err := r.ReadAt(b, 0); err != nil {
		return Header{}, fmt.Errorf("pmtiles: read header: %w", err)
	}
	return decodeHeader(b)
}

func e7(v float64) uint32 { return uint32(int32(v * 1e7)) }

func fromE7(b []byte) float64 { return float64(int32(binary.LittleEndian.Uint32(b))) / 1e7 }

func encodeHeader(h Header) []byte {
	b := make([]byte, HeaderLen)
	copy(b[0:7], magic)
	b[7] = 3

	le := binary.LittleEndian
	for i, v := range []uint64{
		h.RootOffset, h.RootLength,
		h.MetadataOffset, h.MetadataLength,
		0, 0, // leaf directories
		h.TileDataOffset, h.TileDataLength,
		h.AddressedTilesCount, h.TileEntriesCount, h.TileContentsCount,
	} {
		le.PutUint64(b[8+8*i:], v)
	}
	if h.Clustered {
		b[96] = 1
	}
	b[97] = byte(h.InternalCompression)
	b[98] = byte(h.TileCompression)
	b[99] = byte(h.TileType)
	b[100] = h.MinZoom
	b[101] = h.MaxZoom
	le.PutUint32(b[102:], e7(h.Bounds.Min.Lon()))
	le.PutUint32(b[106:], e7(h.Bounds.Min.Lat()))
	le.PutUint32(b[110:], e7(h.Bounds.Max.Lon()))
	le.PutUint32(b[114:], e7(h.Bounds.Max.Lat()))
	b[118] = h.CenterZoom
	le.PutUint32(b[119:], e7(h.Center.Lon()))
	le.PutUint32(b[123:], e7(h.Center.Lat()))
	return b
}

func decodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, errors.New("pmtiles: buffer too small for header")
	}
	if !bytes.Equal(b[0:7], magic) {
		return Header{}, ErrNotPMTiles
	}
	if b[7] != 3 {
		return Header{}, fmt.Errorf("pmtiles: unsupported spec version %d", b[7])
	}

	le := binary.LittleEndian
	u := func(i int) uint64 { return le.Uint64(b[8+8*i:]) }
	return Header{
		RootOffset:          u(0),
		RootLength:          u(1),
		MetadataOffset:      u(2),
		MetadataLength:      u(3),
		TileDataOffset:      u(6),
		TileDataLength:      u(7),
		AddressedTilesCount: u(8),
		TileEntriesCount:    u(9),
		TileContentsCount:   u(10),
		Clustered:           b[96] == 1,
		InternalCompression: Compression(b[97]),
		TileCompression:     Compression(b[98]),
		TileType:            TileType(b[99]),
		MinZoom:             b[100],
		MaxZoom:             b[101],
		Bounds: orb.Bound{
			Min: orb.Point{fromE7(b[102:]), fromE7(b[106:])},
			Max: orb.Point{fromE7(b[110:]), fromE7(b[114:])},
		},
		CenterZoom: b[118],
		Center:     orb.Point{fromE7(b[119:]), fromE7(b[123:])},
	}, nil
}

func gzipBytes(p []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(p); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeMetadata(metadata any) ([]byte, error) {
	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("pmtiles: metadata: %w", err)
	}
	return gzipBytes(raw)
}

// encodeDirectory writes entries column-wise as varints: count, tile id
// deltas, run lengths, lengths, then offsets (0 when contiguous, else
// offset+1).
func encodeDirectory(entries []entry) ([]byte, error) {
	var raw []byte
	raw = binary.AppendUvarint(raw, uint64(len(entries)))

	var last uint64
	for _, e := range entries {
		raw = binary.AppendUvarint(raw, e.tileID-last)
		last = e.tileID
	}
	for range entries {
		raw = binary.AppendUvarint(raw, 1)
	}
	for _, e := range entries {
		raw = binary.AppendUvarint(raw, uint64(e.length))
	}
	for i, e := range entries {
		if i > 0 && e.offset == entries[i-1].offset+uint64(entries[i-1].length) {
			raw = binary.AppendUvarint(raw, 0)
		} else {
			raw = binary.AppendUvarint(raw, e.offset+1)
		}
	}
	return gzipBytes(raw)
}
