package search

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Wire records, little endian:
//
//	query:  localSystemIndex i64 | x y z f64
//	info:   localSystemIndex i64 | flags u8 | state u8 | distance f64 |
//	        candidateIndex i64 | n u32 | n variant entries
//	          NearestNeighbor, NearestElement: dof i64, weight f64
//	          Barycentric: dof i64, x y z f64, distance f64, index i64
//
// Query coordinates and the source rank of an info are not encoded; the
// receiver restores them from its own query and the sender rank.

const flagApproximation = 1

var errShortBuffer = errors.New("record truncated")

// Query is one destination point searched for
type Query struct {
	LocalSystemIndex int
	Coords           r3.Vec
}

func appendI64(b []byte, v int) []byte { return binary.LittleEndian.AppendUint64(b, uint64(int64(v))) }

func appendF64(b []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
}

func appendVec(b []byte, v r3.Vec) []byte {
	return appendF64(appendF64(appendF64(b, v.X), v.Y), v.Z)
}

type reader struct {
	buf []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.buf) < n {
		r.err = errShortBuffer
		return nil
	}
	b := r.buf[:n]
	r.buf = r.buf[n:]
	return b
}

func (r *reader) i64() int {
	if b := r.take(8); b != nil {
		return int(int64(binary.LittleEndian.Uint64(b)))
	}
	return 0
}

func (r *reader) f64() float64 {
	if b := r.take(8); b != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u32() int {
	if b := r.take(4); b != nil {
		return int(binary.LittleEndian.Uint32(b))
	}
	return 0
}

func (r *reader) vec() r3.Vec {
	return r3.Vec{X: r.f64(), Y: r.f64(), Z: r.f64()}
}

// EncodeQueries packs query records
func EncodeQueries(qs []Query) []byte {
	b := make([]byte, 0, 32*len(qs))
	for _, q := range qs {
		b = appendVec(appendI64(b, q.LocalSystemIndex), q.Coords)
	}
	return b
}

// DecodeQueries unpacks a buffer written by EncodeQueries
func DecodeQueries(data []byte) ([]Query, error) {
	if len(data)%32 != 0 {
		return nil, fmt.Errorf("query buffer length %d is not a multiple of 32", len(data))
	}
	r := &reader{buf: data}
	qs := make([]Query, 0, len(data)/32)
	for len(r.buf) > 0 {
		qs = append(qs, Query{LocalSystemIndex: r.i64(), Coords: r.vec()})
	}
	return qs, r.err
}

// AppendInfo appends the wire record of ii to b
func AppendInfo(b []byte, ii *InterfaceInfo) []byte {
	var flags uint8
	if ii.IsApproximation {
		flags |= flagApproximation
	}
	b = appendI64(b, ii.LocalSystemIndex)
	b = append(b, flags, uint8(ii.State))
	b = appendF64(b, ii.Distance)
	b = appendI64(b, ii.CandidateIndex)
	if ii.Kind == Barycentric {
		b = binary.LittleEndian.AppendUint32(b, uint32(len(ii.Pool)))
		for _, n := range ii.Pool {
			b = appendI64(b, n.Dof)
			b = appendVec(b, n.Coords)
			b = appendF64(b, n.Distance)
			b = appendI64(b, n.Index)
		}
		return b
	}
	b = binary.LittleEndian.AppendUint32(b, uint32(len(ii.Dofs)))
	for i, d := range ii.Dofs {
		b = appendI64(b, d)
		b = appendF64(b, ii.Weights[i])
	}
	return b
}

// EncodeInfos packs a sequence of records
func EncodeInfos(infos []*InterfaceInfo) []byte {
	var b []byte
	for _, ii := range infos {
		b = AppendInfo(b, ii)
	}
	return b
}

// DecodeInfos unpacks records of one variant sent by sourceRank
func DecodeInfos(kind MapperKind, data []byte, sourceRank int) ([]*InterfaceInfo, error) {
	r := &reader{buf: data}
	var out []*InterfaceInfo
	for len(r.buf) > 0 && r.err == nil {
		ii := NewEmptyInfo(kind)
		ii.SourceRank = sourceRank
		ii.LocalSystemIndex = r.i64()
		flags := r.u8()
		ii.IsApproximation = flags&flagApproximation != 0
		ii.State = InfoState(r.u8())
		ii.Distance = r.f64()
		ii.CandidateIndex = r.i64()
		n := r.u32()
		if r.err == nil && n > len(r.buf) {
			r.err = errShortBuffer
		}
		if r.err != nil {
			break
		}
		if kind == Barycentric {
			ii.Pool = make([]PoolNode, n)
			for i := range ii.Pool {
				ii.Pool[i] = PoolNode{
					Dof:      r.i64(),
					Coords:   r.vec(),
					Distance: r.f64(),
					Rank:     sourceRank,
					Index:    r.i64(),
				}
			}
		} else {
			ii.Dofs = make([]int, n)
			ii.Weights = make([]float64, n)
			for i := 0; i < n; i++ {
				ii.Dofs[i] = r.i64()
				ii.Weights[i] = r.f64()
			}
		}
		if ii.State > Failed {
			return nil, fmt.Errorf("record from rank %d has invalid state %d", sourceRank, ii.State)
		}
		out = append(out, ii)
	}
	if r.err != nil {
		return nil, fmt.Errorf("decoding records from rank %d: %w", sourceRank, r.err)
	}
	return out, nil
}
