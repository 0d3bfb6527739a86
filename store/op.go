package store

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
)

type OpKind uint8

const (
	OpGet OpKind = iota + 1
	OpPut
	OpPutIfAbsent
	OpRemove
	OpRemoveIf
	OpEntries
	OpFetch
	OpApply
)

func (k OpKind) String() string {
	switch k {
	case OpGet:
		return "get"
	case OpPut:
		return "put"
	case OpPutIfAbsent:
		return "put_if_absent"
	case OpRemove:
		return "remove"
	case OpRemoveIf:
		return "remove_if"
	case OpEntries:
		return "entries"
	case OpFetch:
		return "fetch"
	case OpApply:
		return "apply"
	default:
		return fmt.Sprintf("op(%d)", uint8(k))
	}
}

// Op is a single store operation, in a form that can be shipped to the
// member that owns the key. OpFetch and OpApply move versioned entries
// between replicas and are served by the replicated store only.
type Op struct {
	Kind     OpKind
	Map      string
	Key      string
	Value    []byte
	Expected []byte
	Entry    Entry
}

type Result struct {
	Value   []byte
	Found   bool
	OK      bool
	Entries map[string][]byte
	Entry   Entry
}

// Exec applies the operation to the store. Replica operations are rejected
// with ErrUnknownOp.
func Exec(ctx context.Context, s Store, op Op) (Result, error) {
	var (
		res Result
		err error
	)

	switch op.Kind {
	case OpGet:
		res.Value, res.Found, err = s.Get(ctx, op.Map, op.Key)
	case OpPut:
		err = s.Put(ctx, op.Map, op.Key, op.Value)
		res.OK = err == nil
	case OpPutIfAbsent:
		res.OK, err = s.PutIfAbsent(ctx, op.Map, op.Key, op.Value)
	case OpRemove:
		err = s.Remove(ctx, op.Map, op.Key)
		res.OK = err == nil
	case OpRemoveIf:
		res.OK, err = s.RemoveIf(ctx, op.Map, op.Key, op.Expected)
	case OpEntries:
		res.Entries, err = s.Entries(ctx, op.Map)
	default:
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownOp, op.Kind)
	}

	return res, err
}

func EncodeOp(op Op) ([]byte, error) {
	return encode(op)
}

func DecodeOp(data []byte) (Op, error) {
	var op Op
	err := decode(data, &op)

	return op, err
}

func EncodeResult(res Result) ([]byte, error) {
	return encode(res)
}

func DecodeResult(data []byte) (Result, error) {
	var res Result
	err := decode(data, &res)

	return res, err
}

func EncodeEntries(entries []Entry) ([]byte, error) {
	return encode(entries)
}

func DecodeEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	err := decode(data, &entries)

	return entries, err
}

func encode(v interface{}) ([]byte, error) {
	buf := bytes.Buffer{}

	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decode(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}
