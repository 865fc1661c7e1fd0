package nakama

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// encodeMessage turns a payload into a binary google.protobuf.Struct, the
// wire format of every server event.
func encodeMessage(payload any) ([]byte, error) {
	st, err := toStruct(payload)
	if err != nil {
		return nil, err
	}
	return proto.Marshal(st)
}

func toStruct(payload any) (*structpb.Struct, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	st := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}
	return st, nil
}

// decodeRequest reads a client message. Clients send either a binary
// google.protobuf.Struct or its JSON form; an empty body is an empty request.
func decodeRequest(data []byte) (*structpb.Struct, error) {
	st := &structpb.Struct{}
	if len(data) == 0 {
		return st, nil
	}
	if data[0] == '{' {
		if err := protojson.Unmarshal(data, st); err == nil {
			return st, nil
		}
	}
	if err := proto.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("decode request: %w", err)
	}
	return st, nil
}

// matchLabel renders the searchable label of a match.
func matchLabel(open int, phase string) (string, error) {
	label, err := structpb.NewStruct(map[string]interface{}{
		"game":  "domino",
		"open":  open,
		"phase": phase,
	})
	if err != nil {
		return "", err
	}
	b, err := (&protojson.MarshalOptions{EmitUnpopulated: true}).Marshal(label)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
