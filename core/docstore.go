package core

import (
	"bytes"
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ServerTimestamp, used as a value in DocStore.Update fields, is replaced by the store's own clock.
const ServerTimestamp = serverTimestamp("__server_timestamp__")

type serverTimestamp string

type (
	// Filter is an equality filter on a top-level document field (by its json name).
	Filter struct {
		Field string
		Value interface{}
	}

	WriteKind int

	// Write is one operation of an atomic DocStore.Batch.
	Write struct {
		Kind       WriteKind
		Collection string
		ID         string // empty for WriteAdd: assigned by the store
		Doc        interface{}
	}

	// Doc is a raw document as returned to Watch callbacks.
	Doc struct {
		ID   string
		Data []byte
	}

	// ServerStamped documents get their timestamps from the store clock right before being written.
	ServerStamped interface {
		StampServerTime(t time.Time)
	}

	// IDAssignable documents receive the id the store assigned on Add.
	IDAssignable interface {
		SetDocID(id string)
	}

	// DocStore is a schemaless document database addressed by slash-separated collection paths.
	// Every error returned by an implementation is a *StoreError.
	DocStore interface {
		Get(ctx context.Context, collection, id string, dst interface{}) error
		Add(ctx context.Context, collection string, doc interface{}) (string, error)
		Set(ctx context.Context, collection, id string, doc interface{}) error
		Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
		Delete(ctx context.Context, collection, id string) error
		// Query decodes every document matching all filters into dst, a pointer to a slice.
		Query(ctx context.Context, collection string, filters []Filter, dst interface{}) error
		// Batch applies all writes or none.
		Batch(ctx context.Context, writes []Write) error
		// Watch calls fn with the full matching set once, then after every change, until stop is called or ctx is done.
		Watch(ctx context.Context, collection string, filters []Filter, fn func([]Doc)) (stop func(), err error)
		Close() error
	}
)

const (
	WriteSet WriteKind = iota
	WriteAdd
	WriteDelete
)

func Where(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

func SetWrite(collection, id string, doc interface{}) Write {
	return Write{Kind: WriteSet, Collection: collection, ID: id, Doc: doc}
}

func AddWrite(collection string, doc interface{}) Write {
	return Write{Kind: WriteAdd, Collection: collection, Doc: doc}
}

func DeleteWrite(collection, id string) Write {
	return Write{Kind: WriteDelete, Collection: collection, ID: id}
}

// NewDocID returns a random document id.
func NewDocID() string {
	return uuid.New().String()
}

// InstituteCollection returns the path of a collection owned by an institute account.
func InstituteCollection(instituteID, name string) string {
	return "institutes/" + instituteID + "/" + name
}

// TrainerCollection returns the path of a collection owned by a trainer account.
func TrainerCollection(trainerUID, name string) string {
	return "trainers/" + trainerUID + "/" + name
}

func (d Doc) Decode(dst interface{}) error {
	return json.Unmarshal(d.Data, dst)
}

// EncodeDoc stamps (when applicable) and marshals a document.
func EncodeDoc(doc interface{}, now time.Time) ([]byte, error) {
	if s, ok := doc.(ServerStamped); ok {
		s.StampServerTime(now)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "encoding document")
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, errors.New("documents must encode to a JSON object")
	}
	return data, nil
}

// AssignID generates an id for a WriteAdd and hands it to the document.
func AssignID(doc interface{}) string {
	id := NewDocID()
	if a, ok := doc.(IDAssignable); ok {
		a.SetDocID(id)
	}
	return id
}

// MergeFields merges top-level fields into an encoded document, resolving ServerTimestamp against now.
func MergeFields(data []byte, fields map[string]interface{}, now time.Time) ([]byte, error) {
	m := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrap(err, "decoding document")
	}
	for k, v := range ResolveFields(fields, now) {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, errors.Wrapf(err, "encoding field %s", k)
		}
		m[k] = raw
	}
	return json.Marshal(m)
}

// ResolveFields returns a copy of fields with ServerTimestamp values replaced by now.
func ResolveFields(fields map[string]interface{}, now time.Time) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if v == ServerTimestamp {
			v = now.UTC()
		}
		out[k] = v
	}
	return out
}

// MatchFilters reports whether an encoded document satisfies every equality filter.
func MatchFilters(data []byte, filters []Filter) bool {
	if len(filters) == 0 {
		return true
	}
	m := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}
	for _, f := range filters {
		got, ok := m[f.Field]
		if !ok {
			return false
		}
		want, err := json.Marshal(f.Value)
		if err != nil || !jsonEqual(got, want) {
			return false
		}
	}
	return true
}

func jsonEqual(a, b []byte) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var va, vb interface{}
	if json.Unmarshal(a, &va) != nil || json.Unmarshal(b, &vb) != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

// FiltersObject renders filters as a JSON object (for containment queries).
func FiltersObject(filters []Filter) ([]byte, error) {
	m := make(map[string]interface{}, len(filters))
	for _, f := range filters {
		m[f.Field] = f.Value
	}
	return json.Marshal(m)
}

// SortDocs orders docs by id so every backend returns query results in the same order.
func SortDocs(docs []Doc) {
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
}

// DecodeDocs decodes docs into dst, a pointer to a slice.
func DecodeDocs(docs []Doc, dst interface{}) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return errors.New("query destination must be a pointer to a slice")
	}
	var b strings.Builder
	b.WriteByte('[')
	for i, d := range docs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.Write(d.Data)
	}
	b.WriteByte(']')
	return errors.Wrap(json.Unmarshal([]byte(b.String()), dst), "decoding documents")
}
