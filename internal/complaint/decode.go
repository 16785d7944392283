package complaint

import (
	"bytes"

	"cmonreports/internal/api"
	"cmonreports/internal/errors"

	"github.com/goccy/go-json"
)

// wireRecord is the tolerant on-the-wire form of a Record.
type wireRecord struct {
	ID                  api.FlexString `json:"id"`
	MongoID             api.FlexString `json:"_id"`
	Title               api.FlexString `json:"title"`
	Category            api.FlexString `json:"category"`
	Status              api.FlexString `json:"status"`
	Priority            api.FlexString `json:"priority"`
	CreatedAt           api.FlexString `json:"createdAt"`
	CreatedAtSnake      api.FlexString `json:"created_at"`
	ResolutionTimeHours api.FlexFloat  `json:"resolutionTimeHours"`
	ResolutionSnake     api.FlexFloat  `json:"resolution_time_hours"`
	Reporter            api.FlexString `json:"reporter"`
}

func (w wireRecord) record() Record {
	r := Record{
		ID:        string(w.ID),
		Title:     string(w.Title),
		Category:  string(w.Category),
		Status:    string(w.Status),
		Priority:  string(w.Priority),
		CreatedAt: string(w.CreatedAt),
		Reporter:  string(w.Reporter),
	}
	if r.ID == "" {
		r.ID = string(w.MongoID)
	}
	if r.CreatedAt == "" {
		r.CreatedAt = string(w.CreatedAtSnake)
	}
	if w.ResolutionTimeHours.Valid {
		r.ResolutionTimeHours = w.ResolutionTimeHours.Ptr()
	} else {
		r.ResolutionTimeHours = w.ResolutionSnake.Ptr()
	}
	return r
}

// envelope holds every top-level field a collection response may use.
type envelope struct {
	Complaints json.RawMessage `json:"complaints"`
	Data       json.RawMessage `json:"data"`
	Pagination json.RawMessage `json:"pagination"`
	Meta       json.RawMessage `json:"meta"`
}

// dataEnvelope is the nested form {"data": {"complaints": [...], "meta": {...}}}.
type dataEnvelope struct {
	Complaints json.RawMessage `json:"complaints"`
	Meta       json.RawMessage `json:"meta"`
}

type wireMeta struct {
	Total      *api.FlexInt `json:"total"`
	PageCount  *api.FlexInt `json:"pageCount"`
	TotalPages *api.FlexInt `json:"totalPages"`
	Pages      *api.FlexInt `json:"pages"`
}

// recordShape extracts the raw records array for one known response shape.
type recordShape struct {
	name    string
	extract func(root []byte, env *envelope, data *dataEnvelope) json.RawMessage
}

// recordShapes is the fixed priority list of response shapes. The first shape
// that yields a non-empty array wins.
var recordShapes = []recordShape{
	{"array", func(root []byte, _ *envelope, _ *dataEnvelope) json.RawMessage {
		return root
	}},
	{"complaints", func(_ []byte, env *envelope, _ *dataEnvelope) json.RawMessage {
		if env == nil {
			return nil
		}
		return env.Complaints
	}},
	{"data.complaints", func(_ []byte, _ *envelope, data *dataEnvelope) json.RawMessage {
		if data == nil {
			return nil
		}
		return data.Complaints
	}},
	{"data", func(_ []byte, env *envelope, _ *dataEnvelope) json.RawMessage {
		if env == nil {
			return nil
		}
		return env.Data
	}},
}

// DecodePage decodes one collection response.
//
// Decoding is an explicit, ordered step: the body must be a JSON array or
// object; records are taken from the first shape in recordShapes that holds a
// non-empty array; metadata is read from pagination, meta and data.meta in
// that order, first field present wins.
//
// Returns:
//   - Page: Normalized page (records may be empty, meta may be unknown)
//   - error: *errors.MalformedResponseError when the body is not JSON or
//     matches no known shape. The returned Page still carries any metadata
//     that could be read.
func DecodePage(body []byte) (Page, error) {
	root := bytes.TrimSpace(body)
	if len(root) == 0 {
		return Page{}, errors.NewMalformedResponseError("page", "empty body")
	}
	if !json.Valid(root) {
		return Page{}, errors.NewMalformedResponseError("page", "body is not valid JSON")
	}

	var env *envelope
	var data *dataEnvelope
	switch root[0] {
	case '[':
	case '{':
		env = &envelope{}
		if err := json.Unmarshal(root, env); err != nil {
			return Page{}, errors.NewMalformedResponseError("page", err.Error())
		}
		if isObject(env.Data) {
			data = &dataEnvelope{}
			if err := json.Unmarshal(env.Data, data); err != nil {
				data = nil
			}
		}
	default:
		return Page{}, errors.NewMalformedResponseError("page", "top-level value is neither array nor object")
	}

	page := Page{Meta: decodeMeta(env, data)}

	recognized := false
	for _, shape := range recordShapes {
		raw := shape.extract(root, env, data)
		if !isArray(raw) {
			continue
		}
		recognized = true

		records := decodeRecords(raw)
		if len(records) > 0 {
			page.Records = records
			page.Shape = shape.name
			return page, nil
		}
	}

	page.Records = []Record{}
	if !recognized {
		return page, errors.NewMalformedResponseError("page", "no complaints array in response")
	}
	return page, nil
}

// decodeRecords decodes an array of records, skipping elements that are not
// objects.
func decodeRecords(raw json.RawMessage) []Record {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}

	records := make([]Record, 0, len(elems))
	for _, elem := range elems {
		if !isObject(elem) {
			continue
		}
		var w wireRecord
		if err := json.Unmarshal(elem, &w); err != nil {
			continue
		}
		records = append(records, w.record())
	}
	return records
}

// decodeMeta reads total and page count from the metadata sources in priority
// order. Each field independently takes the first source that declares it.
func decodeMeta(env *envelope, data *dataEnvelope) PageMeta {
	var sources []json.RawMessage
	if env != nil {
		sources = append(sources, env.Pagination, env.Meta)
	}
	if data != nil {
		sources = append(sources, data.Meta)
	}

	var meta PageMeta
	for _, src := range sources {
		if !isObject(src) {
			continue
		}
		var wm wireMeta
		if err := json.Unmarshal(src, &wm); err != nil {
			continue
		}
		if meta.Total == nil && wm.Total != nil {
			meta.Total = wm.Total.Ptr()
		}
		if meta.PageCount == nil {
			for _, candidate := range []*api.FlexInt{wm.PageCount, wm.TotalPages, wm.Pages} {
				if candidate != nil && candidate.Valid {
					meta.PageCount = candidate.Ptr()
					break
				}
			}
		}
	}
	return meta
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
