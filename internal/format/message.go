package format

import (
	"encoding/json"

	"github.com/aiifabbf/kvs/internal/errdefs"
)

// RequestKind identifies the request variant.
type RequestKind uint8

const (
	ReqGet RequestKind = iota
	ReqSet
	ReqRemove
)

// Request is a single client operation sent over one connection.
type Request struct {
	Kind  RequestKind
	Key   string
	Value string // set only
}

// requestJSON is the wire shape: {"Get":"k"}, {"Set":["k","v"]} or
// {"Remove":"k"}.
type requestJSON struct {
	Get    *string    `json:"Get,omitempty"`
	Set    *[2]string `json:"Set,omitempty"`
	Remove *string    `json:"Remove,omitempty"`
}

// EncodeRequest serializes a request to its tagged JSON form.
func EncodeRequest(r Request) ([]byte, error) {
	var raw requestJSON
	switch r.Kind {
	case ReqGet:
		raw.Get = &r.Key
	case ReqSet:
		raw.Set = &[2]string{r.Key, r.Value}
	case ReqRemove:
		raw.Remove = &r.Key
	default:
		return nil, errdefs.Formatf("unknown request kind %d", r.Kind)
	}
	return json.Marshal(raw)
}

// DecodeRequest parses a tagged JSON request.
func DecodeRequest(data []byte) (Request, error) {
	var raw requestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return Request{}, errdefs.Format(err)
	}
	switch {
	case raw.Get != nil && raw.Set == nil && raw.Remove == nil:
		return Request{Kind: ReqGet, Key: *raw.Get}, nil
	case raw.Set != nil && raw.Get == nil && raw.Remove == nil:
		return Request{Kind: ReqSet, Key: raw.Set[0], Value: raw.Set[1]}, nil
	case raw.Remove != nil && raw.Get == nil && raw.Set == nil:
		return Request{Kind: ReqRemove, Key: *raw.Remove}, nil
	default:
		return Request{}, errdefs.Formatf("request carries no single variant tag")
	}
}

// Response is the server's answer: Done with an optional value, or
// Failed with the engine error's message. Value is nil for successful
// set/remove and for a get that found nothing.
type Response struct {
	Done   bool
	Value  *string // done only
	Reason string  // failed only
}

// EncodeResponse serializes a response to {"Done":...} or
// {"Failed":"msg"}. Done's payload may be JSON null.
func EncodeResponse(r Response) ([]byte, error) {
	if r.Done {
		return json.Marshal(map[string]*string{"Done": r.Value})
	}
	return json.Marshal(map[string]string{"Failed": r.Reason})
}

// DecodeResponse parses a tagged JSON response.
func DecodeResponse(data []byte) (Response, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Response{}, errdefs.Format(err)
	}
	if len(raw) != 1 {
		return Response{}, errdefs.Formatf("response carries no single variant tag")
	}
	if payload, ok := raw["Done"]; ok {
		var value *string
		if err := json.Unmarshal(payload, &value); err != nil {
			return Response{}, errdefs.Format(err)
		}
		return Response{Done: true, Value: value}, nil
	}
	if payload, ok := raw["Failed"]; ok {
		var reason string
		if err := json.Unmarshal(payload, &reason); err != nil {
			return Response{}, errdefs.Format(err)
		}
		return Response{Reason: reason}, nil
	}
	return Response{}, errdefs.Formatf("response carries no single variant tag")
}
