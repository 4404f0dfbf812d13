package transfer

import (
	"errors"
	"fmt"
	"io"
)

type Chunk struct {
	SequenceNo uint32
	Offset     int64
	// Data aliases the chunker's buffer and is only valid until the next call to Next.
	Data   []byte
	IsLast bool
}

// Chunker slices a source of known size into fixed-size chunks. Only one
// chunk-sized buffer is held at any time.
type Chunker struct {
	src        io.Reader
	chunkSize  int
	totalSize  int64
	bytesRead  int64
	currentSeq uint32
	buffer     []byte
}

var ErrShortSource = errors.New("source ended before declared size")

func NewChunker(src io.Reader, size int64, chunkSize int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if size < 0 {
		return nil, fmt.Errorf("size cannot be negative, got %d", size)
	}
	bufSize := chunkSize
	if size < int64(chunkSize) {
		bufSize = int(size)
	}
	return &Chunker{
		src:       src,
		chunkSize: chunkSize,
		totalSize: size,
		buffer:    make([]byte, bufSize),
	}, nil
}

// Next returns the next chunk, or io.EOF once size bytes have been produced.
func (c *Chunker) Next() (*Chunk, error) {
	if c.bytesRead >= c.totalSize {
		return nil, io.EOF
	}

	want := int64(len(c.buffer))
	if remaining := c.totalSize - c.bytesRead; remaining < want {
		want = remaining
	}

	n, err := io.ReadFull(c.src, c.buffer[:want])
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: got %d of %d bytes", ErrShortSource, c.bytesRead+int64(n), c.totalSize)
		}
		return nil, err
	}

	offset := c.bytesRead
	c.bytesRead += int64(n)
	c.currentSeq++

	return &Chunk{
		SequenceNo: c.currentSeq,
		Offset:     offset,
		Data:       c.buffer[:n],
		IsLast:     c.bytesRead >= c.totalSize,
	}, nil
}

func (c *Chunker) BytesRead() int64 {
	return c.bytesRead
}
