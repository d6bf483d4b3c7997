// Package shard implements the content-indexed, shardable result-storage
// format of §4.2: ShardParts packed little-endian into gzip-compressed shard
// files, grouped into shards by a Distributor strategy.
package shard

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Part is one policy-rule's finding list for one location at one point in time.
type Part struct {
	Policy    string
	Location  string
	Timestamp float64 // unix seconds, float64 to match the wire format exactly
	Payload   []byte  // JSON-encoded list-of-objects, UTF-8
}

// EncodePart writes one Part in the binary layout:
//
//	uint32  policy_len
//	bytes   policy_name
//	uint32  location_len
//	bytes   location
//	float64 unix_ts
//	uint32  payload_len
//	bytes   payload
func EncodePart(w io.Writer, p Part) error {
	if err := writeLenPrefixed(w, []byte(p.Policy)); err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	if err := writeLenPrefixed(w, []byte(p.Location)); err != nil {
		return fmt.Errorf("encode location: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, p.Timestamp); err != nil {
		return fmt.Errorf("encode timestamp: %w", err)
	}
	if err := writeLenPrefixed(w, p.Payload); err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	return nil
}

func writeLenPrefixed(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// DecodePart reads one Part from r. io.EOF (with zero bytes consumed) signals
// a clean end-of-shard; any other error, including a truncated part, is
// reported as io.ErrUnexpectedEOF via the wrapped error.
func DecodePart(r io.Reader) (Part, error) {
	var p Part

	policy, err := readLenPrefixed(r)
	if err != nil {
		return Part{}, err // propagate io.EOF untouched for end-of-shard detection
	}
	p.Policy = string(policy)

	location, err := readLenPrefixed(r)
	if err != nil {
		return Part{}, fmt.Errorf("decode location: %w", io.ErrUnexpectedEOF)
	}
	p.Location = string(location)

	if err := binary.Read(r, binary.LittleEndian, &p.Timestamp); err != nil {
		return Part{}, fmt.Errorf("decode timestamp: %w", io.ErrUnexpectedEOF)
	}

	payload, err := readLenPrefixed(r)
	if err != nil {
		return Part{}, fmt.Errorf("decode payload: %w", io.ErrUnexpectedEOF)
	}
	p.Payload = payload

	return p, nil
}

func readLenPrefixed(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.EOF {
			// The length prefix was read, so the part is truncated, not absent.
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf, nil
}

// EncodeParts serializes an ordered sequence of parts into a shard body
// (pre-gzip).
func EncodeParts(parts []Part) ([]byte, error) {
	var buf bytes.Buffer
	for _, p := range parts {
		if err := EncodePart(&buf, p); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeParts reads every part from a shard body (post-gunzip) until clean EOF.
func DecodeParts(body []byte) ([]Part, error) {
	r := bytes.NewReader(body)
	var parts []Part
	for {
		p, err := DecodePart(r)
		if err == io.EOF {
			return parts, nil
		}
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}
}
