package mapdb

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/zond/juicevox"
	"github.com/zond/juicevox/wire"
)

const (
	nodeCount          = BlockSize * BlockSize * BlockSize
	blockFormatVersion = 1
)

var (
	ErrBlockFormat = errors.New("unsupported block format")

	blockEncoder *zstd.Encoder
	blockDecoder *zstd.Decoder
)

func init() {
	var err error
	if blockEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		panic(fmt.Sprintf("creating block encoder: %v", err))
	}
	if blockDecoder, err = zstd.NewReader(nil); err != nil {
		panic(fmt.Sprintf("creating block decoder: %v", err))
	}
}

// Block is a cube of BlockSize³ nodes.
type Block struct {
	Pos   BlockPos
	nodes [nodeCount]Node
}

// NewBlock returns a block at pos filled with air.
func NewBlock(pos BlockPos) *Block {
	b := &Block{Pos: pos}
	for i := range b.nodes {
		b.nodes[i] = Node{Content: ContentAir}
	}
	return b
}

func index(x, y, z int) int {
	// x fastest, then y, then z
	return x + y*BlockSize + z*BlockSize*BlockSize
}

// Get returns the node at the block relative coordinate.
func (b *Block) Get(x, y, z int) Node {
	return b.nodes[index(x, y, z)]
}

// Set replaces the node at the block relative coordinate.
func (b *Block) Set(x, y, z int, n Node) {
	b.nodes[index(x, y, z)] = n
}

// Serialize encodes the block as a version byte followed by a zstd
// compressed run of (u16 content, u8 param) records.
func (b *Block) Serialize() []byte {
	raw := &wire.Writer{}
	for _, n := range b.nodes {
		raw.WriteU16(uint16(n.Content))
		raw.WriteU8(n.Param)
	}
	return blockEncoder.EncodeAll(raw.Bytes(), []byte{blockFormatVersion})
}

// DeserializeBlock decodes a block produced by Serialize.
func DeserializeBlock(pos BlockPos, data []byte) (*Block, error) {
	if len(data) == 0 || data[0] != blockFormatVersion {
		return nil, juicevox.WithStack(ErrBlockFormat)
	}
	raw, err := blockDecoder.DecodeAll(data[1:], nil)
	if err != nil {
		return nil, juicevox.WithStack(err)
	}
	r := wire.NewReader(raw)
	b := &Block{Pos: pos}
	for i := range b.nodes {
		c, err := r.ReadU16()
		if err != nil {
			return nil, juicevox.WithStack(err)
		}
		p, err := r.ReadU8()
		if err != nil {
			return nil, juicevox.WithStack(err)
		}
		b.nodes[i] = Node{Content: Content(c), Param: p}
	}
	return b, nil
}
