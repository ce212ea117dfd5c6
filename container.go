package huff

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/seiflotfy/huff/bitstream"
)

const (
	containerMagic   = "HUF\x1a"
	containerVersion = uint16(1)

	// FileExtension is the conventional suffix of a container file.
	FileExtension = ".hf"

	stageTree    = "tree"
	stagePayload = "payload"

	stageTreeParamBytes    = 2 // uint16 tree bit count
	stagePayloadParamBytes = 8 // uint64 payload bit count

	fixedHeaderBytes     = 4 + 2 + 2 + 8 + 8
	stageFrameBytes      = 1 + 2 + 4
	maxContainerStages   = 16
	maxStagePayloadBytes = math.MaxUint32

	maxTreeBits = 10*Symbols - 1
	maxCodeLen  = Symbols - 1
)

// Wire format (version 1):
//
//	magic[4] = "HUF\x1a"
//	version  = uint16 little-endian
//	flags    = uint16 little-endian, must be 0
//	origLen  = uint64 little-endian
//	checksum = uint64 little-endian, xxhash64 of the original bytes
//	stageCnt = uint16 little-endian
//	repeat stageCnt times:
//	  nameLen  = uint8
//	  paramLen = uint16 little-endian
//	  dataLen  = uint32 little-endian
//	  name     = nameLen bytes
//	  params   = paramLen bytes
//	  payload  = dataLen bytes
//
// Required stages:
//
//	tree     params = uint16 bit count, payload = pre-order tree, MSB first
//	payload  params = uint64 bit count, payload = packed codes, MSB first
//
// Unknown stages are skipped via dataLen framing. An empty original has
// empty tree and payload stages.
type wireStageHeader struct {
	name     string
	paramLen uint16
	dataLen  uint32
}

// Header is the fixed-width prefix of a container. It is enough to report
// the original size without touching symbol data.
type Header struct {
	Version     uint16
	Flags       uint16
	OriginalLen uint64
	Checksum    uint64
}

// Container is a parsed compressed artifact.
type Container struct {
	OriginalLen uint64
	Checksum    uint64

	Tree     []byte // serialized tree, TreeBits valid bits
	TreeBits uint64

	Payload     []byte // packed codes, PayloadBits valid bits
	PayloadBits uint64
}

func writeBytes(w io.Writer, b []byte) (int64, error) {
	n, err := w.Write(b)
	if err != nil {
		return int64(n), err
	}
	if n != len(b) {
		return int64(n), io.ErrShortWrite
	}
	return int64(n), nil
}

func writeStage(w io.Writer, name string, params []byte, payload []byte) (int64, error) {
	if len(name) == 0 || len(name) > math.MaxUint8 {
		return 0, fmt.Errorf("invalid stage name length: %d", len(name))
	}
	if len(params) > math.MaxUint16 {
		return 0, fmt.Errorf("stage params too large for %q: %d", name, len(params))
	}
	if uint64(len(payload)) > maxStagePayloadBytes {
		return 0, fmt.Errorf("%w: stage payload too large for %q: %d", ErrInvalidInput, name, len(payload))
	}

	var frame [stageFrameBytes]byte
	frame[0] = uint8(len(name))
	binary.LittleEndian.PutUint16(frame[1:3], uint16(len(params)))
	binary.LittleEndian.PutUint32(frame[3:7], uint32(len(payload)))

	var total int64
	for _, part := range [][]byte{frame[:], []byte(name), params, payload} {
		n, err := writeBytes(w, part)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func readStageHeader(r io.Reader) (wireStageHeader, int64, error) {
	var frame [stageFrameBytes]byte
	n, err := io.ReadFull(r, frame[:])
	total := int64(n)
	if err != nil {
		return wireStageHeader{}, total, err
	}
	nameLen := frame[0]
	if nameLen == 0 {
		return wireStageHeader{}, total, fmt.Errorf("stage name length must be > 0")
	}

	nameBytes := make([]byte, int(nameLen))
	n, err = io.ReadFull(r, nameBytes)
	total += int64(n)
	if err != nil {
		return wireStageHeader{}, total, err
	}

	return wireStageHeader{
		name:     string(nameBytes),
		paramLen: binary.LittleEndian.Uint16(frame[1:3]),
		dataLen:  binary.LittleEndian.Uint32(frame[3:7]),
	}, total, nil
}

// readSection reads exactly n bytes without trusting n for the allocation.
func readSection(r io.Reader, n uint32) ([]byte, error) {
	var buf bytes.Buffer
	copied, err := io.CopyN(&buf, r, int64(n))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("have %d of %d bytes: %w", copied, n, io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadHeader reads and checks the fixed-width header at the start of r.
func ReadHeader(r io.Reader) (Header, error) {
	h, _, err := readHeader(r)
	return h, err
}

func readHeader(r io.Reader) (Header, int64, error) {
	var buf [fixedHeaderBytes]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		if n >= len(containerMagic) && string(buf[:4]) != containerMagic {
			return Header{}, int64(n), corruptf("invalid magic at offset 0: %q", buf[:4])
		}
		return Header{}, int64(n), corruptf("read header at offset %d: %v", n, err)
	}
	if string(buf[:4]) != containerMagic {
		return Header{}, int64(n), corruptf("invalid magic at offset 0: %q", buf[:4])
	}
	h := Header{
		Version:     binary.LittleEndian.Uint16(buf[4:6]),
		Flags:       binary.LittleEndian.Uint16(buf[6:8]),
		OriginalLen: binary.LittleEndian.Uint64(buf[8:16]),
		Checksum:    binary.LittleEndian.Uint64(buf[16:24]),
	}
	if h.Version != containerVersion {
		return h, int64(n), fmt.Errorf("%w: version %d at offset 4", ErrUnsupportedVersion, h.Version)
	}
	if h.Flags != 0 {
		return h, int64(n), fmt.Errorf("%w: flags %#04x at offset 6", ErrUnsupportedVersion, h.Flags)
	}
	return h, int64(n), nil
}

func validateContainer(c *Container) error {
	if uint64(len(c.Tree)) != bitstream.ByteLen(c.TreeBits) {
		return fmt.Errorf("tree section is %d bytes for %d bits", len(c.Tree), c.TreeBits)
	}
	if uint64(len(c.Payload)) != bitstream.ByteLen(c.PayloadBits) {
		return fmt.Errorf("payload section is %d bytes for %d bits", len(c.Payload), c.PayloadBits)
	}
	if c.OriginalLen == 0 {
		if c.TreeBits != 0 || c.PayloadBits != 0 {
			return fmt.Errorf("empty original with %d tree bits and %d payload bits", c.TreeBits, c.PayloadBits)
		}
		return nil
	}
	if c.TreeBits < serializedTreeBits(2) || c.TreeBits > maxTreeBits || (c.TreeBits+1)%10 != 0 {
		return fmt.Errorf("tree bit count %d does not describe a tree", c.TreeBits)
	}
	if c.PayloadBits < c.OriginalLen {
		return fmt.Errorf("payload of %d bits cannot hold %d symbols", c.PayloadBits, c.OriginalLen)
	}
	if c.OriginalLen <= math.MaxUint64/maxCodeLen && c.PayloadBits > c.OriginalLen*maxCodeLen {
		return fmt.Errorf("payload of %d bits exceeds %d symbols of at most %d bits", c.PayloadBits, c.OriginalLen, maxCodeLen)
	}
	return nil
}

// Size returns the number of bytes WriteTo produces.
func (c *Container) Size() int64 {
	return fixedHeaderBytes + 2 +
		stageFrameBytes + int64(len(stageTree)) + stageTreeParamBytes + int64(len(c.Tree)) +
		stageFrameBytes + int64(len(stagePayload)) + stagePayloadParamBytes + int64(len(c.Payload))
}

// Header returns the fixed header WriteTo emits.
func (c *Container) Header() Header {
	return Header{
		Version:     containerVersion,
		OriginalLen: c.OriginalLen,
		Checksum:    c.Checksum,
	}
}

// WriteTo serializes the container to w.
func (c *Container) WriteTo(w io.Writer) (int64, error) {
	if err := validateContainer(c); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvariant, err)
	}

	var head [fixedHeaderBytes + 2]byte
	copy(head[:4], containerMagic)
	binary.LittleEndian.PutUint16(head[4:6], containerVersion)
	binary.LittleEndian.PutUint16(head[6:8], 0)
	binary.LittleEndian.PutUint64(head[8:16], c.OriginalLen)
	binary.LittleEndian.PutUint64(head[16:24], c.Checksum)
	binary.LittleEndian.PutUint16(head[24:26], 2)

	var treeParams [stageTreeParamBytes]byte
	binary.LittleEndian.PutUint16(treeParams[:], uint16(c.TreeBits))
	var payloadParams [stagePayloadParamBytes]byte
	binary.LittleEndian.PutUint64(payloadParams[:], c.PayloadBits)

	stages := []struct {
		name    string
		params  []byte
		payload []byte
	}{
		{name: stageTree, params: treeParams[:], payload: c.Tree},
		{name: stagePayload, params: payloadParams[:], payload: c.Payload},
	}

	total, err := writeBytes(w, head[:])
	if err != nil {
		return total, err
	}
	for _, stage := range stages {
		n, err := writeStage(w, stage.name, stage.params, stage.payload)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// MarshalBinary returns the serialized container.
func (c *Container) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(c.Size()))
	if _, err := c.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadFrom parses a container from r. On error c is left unchanged.
func (c *Container) ReadFrom(r io.Reader) (int64, error) {
	h, total, err := readHeader(r)
	if err != nil {
		return total, err
	}

	var countBuf [2]byte
	stageCountOffset := total
	n, err := io.ReadFull(r, countBuf[:])
	total += int64(n)
	if err != nil {
		return total, corruptf("read stage count at offset %d: %v", stageCountOffset, err)
	}
	stageCount := binary.LittleEndian.Uint16(countBuf[:])
	if stageCount < 2 || stageCount > maxContainerStages {
		return total, corruptf("invalid stage count at offset %d: %d", stageCountOffset, stageCount)
	}

	tmp := Container{OriginalLen: h.OriginalLen, Checksum: h.Checksum}
	seenStages := make(map[string]bool, stageCount)

	for i := 0; i < int(stageCount); i++ {
		headerOffset := total
		header, n, err := readStageHeader(r)
		total += n
		if err != nil {
			return total, corruptf("read stage header at offset %d (stage index %d): %v", headerOffset, i, err)
		}
		if seenStages[header.name] {
			return total, corruptf("duplicate stage %q at stage index %d", header.name, i)
		}
		seenStages[header.name] = true

		paramsOffset := total
		params, err := readSection(r, uint32(header.paramLen))
		total += int64(len(params))
		if err != nil {
			return total, corruptf("read stage %q params at offset %d (stage index %d): %v", header.name, paramsOffset, i, err)
		}

		switch header.name {
		case stageTree, stagePayload:
			payloadOffset := total
			payload, err := readSection(r, header.dataLen)
			total += int64(len(payload))
			if err != nil {
				return total, corruptf("read stage %q payload at offset %d (stage index %d): %v", header.name, payloadOffset, i, err)
			}
			if err := decodeStage(&tmp, header.name, params, payload); err != nil {
				return total, corruptf("decode stage %q at offset %d (stage index %d): %v", header.name, payloadOffset, i, err)
			}
		default:
			skipOffset := total
			skipped, err := io.CopyN(io.Discard, r, int64(header.dataLen))
			total += skipped
			if err != nil {
				return total, corruptf("skip unknown stage %q at offset %d (stage index %d): %v", header.name, skipOffset, i, err)
			}
		}
	}

	for _, stageName := range []string{stageTree, stagePayload} {
		if !seenStages[stageName] {
			return total, corruptf("missing required stage %q", stageName)
		}
	}
	if err := validateContainer(&tmp); err != nil {
		return total, corruptf("invalid container structure: %v", err)
	}

	*c = tmp
	return total, nil
}

func decodeStage(dst *Container, name string, params, payload []byte) error {
	switch name {
	case stageTree:
		if len(params) != stageTreeParamBytes {
			return fmt.Errorf("invalid tree params: %v", params)
		}
		dst.TreeBits = uint64(binary.LittleEndian.Uint16(params))
		dst.Tree = payload
	case stagePayload:
		if len(params) != stagePayloadParamBytes {
			return fmt.Errorf("invalid payload params: %v", params)
		}
		dst.PayloadBits = binary.LittleEndian.Uint64(params)
		dst.Payload = payload
	}
	return nil
}

// UnmarshalBinary parses data, which must hold exactly one container.
func (c *Container) UnmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	if _, err := c.ReadFrom(r); err != nil {
		return err
	}
	if r.Len() != 0 {
		return corruptf("%d trailing bytes after container", r.Len())
	}
	return nil
}
