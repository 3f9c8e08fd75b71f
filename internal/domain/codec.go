package domain

import (
	"encoding/json"

	"github.com/xoelrdgz/succeed2ban/internal/errors"
)

// envelope is the wire form of an action: {"kind": "...", "data": {...}}.
// Signals carry no data.
type envelope struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

type decodeFunc func(json.RawMessage) (Action, error)

func payload[T Action](raw json.RawMessage) (Action, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func statsGet(d Dimension) decodeFunc {
	return func(json.RawMessage) (Action, error) { return StatsGet{Dimension: d}, nil }
}

var decoders = func() map[Kind]decodeFunc {
	m := map[Kind]decodeFunc{
		"Resize":            payload[Resize],
		"Error":             payload[Error],
		"InternalLog":       payload[InternalLog],
		"SubmittedCapacity": payload[SubmittedCapacity],
		"SubmitQuery":       payload[SubmitQuery],
		"QueryNotFound":     payload[QueryNotFound],
		"SelectTheme":       payload[SelectTheme],
		"IONotify":          payload[IONotify],
		"GotGeo":            payload[GotGeo],
		"PassGeo":           payload[PassGeo],
		"RequestBan":        payload[RequestBan],
		"RequestUnban":      payload[RequestUnban],
		"BanIP":             payload[BanIP],
		"UnbanIP":           payload[UnbanIP],
		"Banned":            payload[Banned],
		"Unbanned":          payload[Unbanned],
		"StatsGetIP":        payload[StatsGetIP],
		"StatsGotIP":        payload[StatsGotIP],
	}
	for _, s := range Signals {
		sig := s
		m[sig.Kind()] = func(json.RawMessage) (Action, error) { return sig, nil }
	}
	for _, d := range Dimensions {
		m[StatsGet{Dimension: d}.Kind()] = statsGet(d)
		m[StatsGot{Dimension: d}.Kind()] = payload[StatsGot]
		m[StatsBlock{Key: DimensionKey{Dimension: d}}.Kind()] = payload[StatsBlock]
		m[StatsUnblock{Key: DimensionKey{Dimension: d}}.Kind()] = payload[StatsUnblock]
	}
	return m
}()

// EncodeAction renders an action as its JSON envelope.
func EncodeAction(a Action) ([]byte, error) {
	if a == nil {
		return nil, errors.New(errors.KindActionDecode, "encode nil action")
	}
	env := envelope{Kind: a.Kind()}
	if _, isSignal := a.(Signal); !isSignal {
		data, err := json.Marshal(a)
		if err != nil {
			return nil, errors.Wrapf(err, errors.KindActionDecode, "encode %s", a.Kind())
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// DecodeAction parses a JSON envelope back into an action. Unknown kinds,
// malformed payloads and payloads of another kind are KindActionDecode errors.
func DecodeAction(b []byte) (Action, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, errors.Wrap(err, errors.KindActionDecode, "decode envelope")
	}
	if env.Kind == "" {
		return nil, errors.New(errors.KindActionDecode, "decode envelope: missing kind")
	}
	dec, ok := decoders[env.Kind]
	if !ok {
		return nil, errors.Errorf(errors.KindActionDecode, "unknown action kind %q", env.Kind)
	}
	a, err := dec(env.Data)
	if err != nil {
		return nil, errors.Wrapf(err, errors.KindActionDecode, "decode %s", env.Kind)
	}
	if a.Kind() != env.Kind {
		return nil, errors.Errorf(errors.KindActionDecode, "decode %s: payload is a %s", env.Kind, a.Kind())
	}
	return a, nil
}
