package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Payload carries the op-specific request fields. Not every op reads every field.
type Payload struct {
	Hwnd        WindowHandle `json:"hwnd"`
	X           int          `json:"x"`
	Y           int          `json:"y"`
	Button      Button       `json:"button,omitempty"`
	Delta       int          `json:"delta,omitempty"`
	Horiz       bool         `json:"horiz,omitempty"`
	StickBottom bool         `json:"stickBottom,omitempty"`
	ToX         int          `json:"toX,omitempty"`
	ToY         int          `json:"toY,omitempty"`
}

// Request is one host → worker line: {"id":..,"op":..,...payload}.
type Request struct {
	ID int64 `json:"id"`
	Op Op    `json:"op"`
	Payload
}

// Response is a correlated worker → host line.
type Response struct {
	ID     int64       `json:"id"`
	OK     bool        `json:"ok"`
	Err    string      `json:"err,omitempty"`
	Outer  *Rect       `json:"outer,omitempty"`
	Client *ClientArea `json:"client,omitempty"`
	DPI    int         `json:"dpi,omitempty"`
}

// Notice is an unsolicited worker → host line.
type Notice struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

const (
	NoticeReady = "ready"
	NoticeError = "error"
)

// OKResponse builds a successful response with no result body.
func OKResponse(id int64) Response {
	return Response{ID: id, OK: true}
}

// ErrorResponse builds a failed response.
func ErrorResponse(id int64, err error) Response {
	msg := "worker error"
	if err != nil && err.Error() != "" {
		msg = err.Error()
	}
	return Response{ID: id, OK: false, Err: msg}
}

// GeometryResponse builds the result of a geom request.
func GeometryResponse(id int64, g Geometry) Response {
	outer := g.Outer
	client := g.Client
	return Response{ID: id, OK: true, Outer: &outer, Client: &client, DPI: g.DPI}
}

// Geometry extracts the geom result from a response.
func (r *Response) Geometry() (Geometry, error) {
	if r == nil || !r.OK {
		return Geometry{}, errors.New("no geometry in failed response")
	}
	if r.Outer == nil || r.Client == nil {
		return Geometry{}, errors.New("geometry response missing outer or client")
	}
	return Geometry{Outer: *r.Outer, Client: *r.Client, DPI: r.DPI}, nil
}

// Encode renders v as a single protocol line including the trailing newline.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// MessageKind classifies a decoded worker → host line.
type MessageKind int

const (
	KindResponse MessageKind = iota
	KindReady
	KindError
)

// Message is a validated worker → host line.
type Message struct {
	Kind     MessageKind
	Text     string
	Response *Response
}

// DecodeMessage validates one worker output line against the response schema.
// Anything that is not a ready/error notice or a response with an integer id and a
// boolean ok is rejected with a *DecodeError.
func DecodeMessage(line []byte) (Message, error) {
	var raw struct {
		Type    *string     `json:"type"`
		Message *string     `json:"message"`
		ID      *int64      `json:"id"`
		OK      *bool       `json:"ok"`
		Err     *string     `json:"err"`
		Outer   *Rect       `json:"outer"`
		Client  *ClientArea `json:"client"`
		DPI     int         `json:"dpi"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return Message{}, newDecodeError(line, err)
	}

	if raw.Type != nil {
		switch *raw.Type {
		case NoticeReady:
			return Message{Kind: KindReady}, nil
		case NoticeError:
			if raw.Message == nil {
				return Message{}, newDecodeError(line, errors.New("error notice without message"))
			}
			return Message{Kind: KindError, Text: *raw.Message}, nil
		default:
			return Message{}, newDecodeError(line, fmt.Errorf("unknown notice type %q", *raw.Type))
		}
	}

	if raw.ID == nil {
		return Message{}, newDecodeError(line, errors.New("missing id"))
	}
	if raw.OK == nil {
		return Message{}, newDecodeError(line, errors.New("missing ok"))
	}

	resp := &Response{
		ID:     *raw.ID,
		OK:     *raw.OK,
		Outer:  raw.Outer,
		Client: raw.Client,
		DPI:    raw.DPI,
	}
	if !resp.OK {
		resp.Err = "worker error"
		if raw.Err != nil && *raw.Err != "" {
			resp.Err = *raw.Err
		}
	}
	return Message{Kind: KindResponse, Response: resp}, nil
}

// DecodeRequest parses one host → worker line. The returned id is valid whenever
// it could be read, even if the op is rejected, so the worker can still answer.
func DecodeRequest(line []byte) (Request, error) {
	var raw struct {
		ID *int64 `json:"id"`
		Op string `json:"op"`
		Payload
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return Request{}, newDecodeError(line, err)
	}
	if raw.ID == nil {
		return Request{}, newDecodeError(line, errors.New("missing id"))
	}

	req := Request{ID: *raw.ID, Payload: raw.Payload}
	op, err := ParseOp(raw.Op)
	if err != nil {
		return req, err
	}
	req.Op = op
	return req, nil
}
