package storage

import (
	"encoding/json"
	"time"

	"github.com/valyala/fastjson"

	"github.com/periscope/recorder-core/pkg/entry"
)

// storedEntry is the persisted JSON shape of an entry object.
type storedEntry struct {
	UUID       string         `json:"uuid"`
	BatchID    string         `json:"batch_id"`
	Type       string         `json:"type"`
	FamilyHash string         `json:"family_hash"`
	Content    map[string]any `json:"content"`
	CreatedAt  string         `json:"created_at"`
	Tags       []string       `json:"tags"`
	Sequence   *int64         `json:"sequence,omitempty"`
}

func encodeEntry(e *entry.Entry) ([]byte, error) {
	tags := e.Tags
	if tags == nil {
		tags = []string{}
	}
	return json.MarshalIndent(&storedEntry{
		UUID:       e.UUID,
		BatchID:    e.BatchID,
		Type:       e.Type,
		FamilyHash: e.FamilyHash,
		Content:    e.Content,
		CreatedAt:  e.RecordedAt.UTC().Format(time.RFC3339Nano),
		Tags:       tags,
		Sequence:   e.Sequence,
	}, "", "  ")
}

var resultParsers fastjson.ParserPool

// decodeResult reconstructs a read-side result from untrusted stored
// bytes. Missing or malformed fields are substituted with defaults; a
// corrupt document yields an empty result timestamped at read time.
func decodeResult(data []byte) *entry.Result {
	now := time.Now().UTC()
	res := &entry.Result{Content: map[string]any{}, Tags: []string{}, CreatedAt: now}

	p := resultParsers.Get()
	defer resultParsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil || v.Type() != fastjson.TypeObject {
		return res
	}

	res.UUID = string(v.GetStringBytes("uuid"))
	res.BatchID = string(v.GetStringBytes("batch_id"))
	res.Type = string(v.GetStringBytes("type"))
	res.FamilyHash = string(v.GetStringBytes("family_hash"))

	if sv := v.Get("sequence"); sv != nil && sv.Type() == fastjson.TypeNumber {
		seq := sv.GetInt64()
		res.Sequence = &seq
	}

	for _, tv := range v.GetArray("tags") {
		if tag := tv.GetStringBytes(); tag != nil {
			res.Tags = append(res.Tags, string(tag))
		}
	}

	if raw := v.GetStringBytes("created_at"); raw != nil {
		if ts, err := parseTimestamp(string(raw)); err == nil {
			res.CreatedAt = ts
		}
	}

	if cv := v.Get("content"); cv != nil && cv.Type() == fastjson.TypeObject {
		if content, ok := jsonValueToGo(cv).(map[string]any); ok {
			res.Content = content
		}
	}

	return res
}

func parseTimestamp(raw string) (time.Time, error) {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		ts, err = time.Parse(time.RFC3339, raw)
	}
	return ts, err
}

func jsonValueToGo(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		obj, err := v.Object()
		if err != nil {
			return nil
		}
		m := make(map[string]any, obj.Len())
		obj.Visit(func(key []byte, val *fastjson.Value) {
			m[string(key)] = jsonValueToGo(val)
		})
		return m
	case fastjson.TypeArray:
		arr := v.GetArray()
		out := make([]any, 0, len(arr))
		for _, item := range arr {
			out = append(out, jsonValueToGo(item))
		}
		return out
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		return v.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	default:
		return nil
	}
}
