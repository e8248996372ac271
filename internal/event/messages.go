package event

import (
	"encoding/json"
	"fmt"

	"github.com/wiseops/wise/internal/rcon/parsing"
)

// ServerWsMessage is anything the server pushes to a websocket client.
// On the wire it is externally tagged: {"Rcon":...}, {"Response":{...}}
// or {"Authenticated":null}.
type ServerWsMessage interface {
	isServerWsMessage()
}

// RconMessage carries one event from the game server.
type RconMessage struct {
	Event RconEvent
}

// ResponseMessage answers a previously received client request. The id is
// the one the client supplied; the bus fan-out delivers it back to the
// originator.
type ResponseMessage struct {
	ID    string
	Value ServerWsResponse
}

// AuthenticatedMessage confirms a successful token handshake.
type AuthenticatedMessage struct{}

func (RconMessage) isServerWsMessage()          {}
func (ResponseMessage) isServerWsMessage()      {}
func (AuthenticatedMessage) isServerWsMessage() {}

// MarshalServerWsMessage encodes a message for the wire.
func MarshalServerWsMessage(m ServerWsMessage) ([]byte, error) {
	switch m := m.(type) {
	case RconMessage:
		inner, err := marshalRconEvent(m.Event)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{"Rcon": inner})
	case ResponseMessage:
		return json.Marshal(map[string]any{"Response": map[string]any{
			"id":    m.ID,
			"value": m.Value,
		}})
	case AuthenticatedMessage:
		return []byte(`{"Authenticated":null}`), nil
	default:
		return nil, fmt.Errorf("marshal server message: unknown type %T", m)
	}
}

// UnmarshalServerWsMessage decodes a message from the wire.
func UnmarshalServerWsMessage(data []byte) (ServerWsMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal server message: %w", err)
	}
	if len(raw) != 1 {
		return nil, fmt.Errorf("unmarshal server message: expected exactly one tag, got %d", len(raw))
	}
	for tag, value := range raw {
		switch tag {
		case "Rcon":
			inner, err := unmarshalRconEvent(value)
			if err != nil {
				return nil, err
			}
			return RconMessage{Event: inner}, nil
		case "Response":
			var body struct {
				ID    string           `json:"id"`
				Value ServerWsResponse `json:"value"`
			}
			if err := json.Unmarshal(value, &body); err != nil {
				return nil, fmt.Errorf("unmarshal response message: %w", err)
			}
			return ResponseMessage{ID: body.ID, Value: body.Value}, nil
		case "Authenticated":
			return AuthenticatedMessage{}, nil
		default:
			return nil, fmt.Errorf("unmarshal server message: unknown tag %q", tag)
		}
	}
	return nil, fmt.Errorf("unmarshal server message: empty object")
}

// ClientWsMessage is anything a client may send after the handshake.
// Currently the only form is {"Request":{"id":"...","value":{...}}}.
type ClientWsMessage struct {
	ID    string
	Value ClientWsRequest
}

// ClientWsRequest is the request payload; the only variant asks the
// server to execute a command.
type ClientWsRequest struct {
	Execute CommandRequestKind
}

// UnmarshalClientWsMessage decodes a client frame.
func UnmarshalClientWsMessage(data []byte) (ClientWsMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return ClientWsMessage{}, fmt.Errorf("unmarshal client message: %w", err)
	}
	request, ok := raw["Request"]
	if !ok || len(raw) != 1 {
		return ClientWsMessage{}, fmt.Errorf("unmarshal client message: expected a Request tag")
	}

	var body struct {
		ID    string                     `json:"id"`
		Value map[string]json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(request, &body); err != nil {
		return ClientWsMessage{}, fmt.Errorf("unmarshal client request: %w", err)
	}
	execute, ok := body.Value["Execute"]
	if !ok || len(body.Value) != 1 {
		return ClientWsMessage{}, fmt.Errorf("unmarshal client request: expected an Execute tag")
	}
	kind, err := UnmarshalCommandRequestKind(execute)
	if err != nil {
		return ClientWsMessage{}, err
	}
	return ClientWsMessage{ID: body.ID, Value: ClientWsRequest{Execute: kind}}, nil
}

// MarshalClientWsMessage encodes a client frame; used by client-side
// tooling and tests.
func MarshalClientWsMessage(m ClientWsMessage) ([]byte, error) {
	kind, err := marshalCommandRequestKind(m.Value.Execute)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"Request": map[string]any{
		"id":    m.ID,
		"value": map[string]json.RawMessage{"Execute": kind},
	}})
}

// CommandRequestKind is the command a client wants executed.
type CommandRequestKind interface {
	isCommandRequestKind()
	requestTag() string
}

// RawRequest executes an arbitrary command without response parsing.
type RawRequest struct {
	Name        string `json:"name"`
	ContentBody string `json:"contentBody"`
}

// GetGameStateRequest fetches the current match state.
type GetGameStateRequest struct{}

// GetPlayersRequest fetches all players currently on the server.
type GetPlayersRequest struct{}

// GetPlayerRequest fetches the information block of one player.
type GetPlayerRequest string

// BroadcastRequest shows a message to every player.
type BroadcastRequest string

// MessagePlayerRequest sends a message to one player.
type MessagePlayerRequest struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// PunishPlayerRequest kills a player in game as a warning.
type PunishPlayerRequest struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// KickPlayerRequest removes a player from the server.
type KickPlayerRequest struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

func (RawRequest) isCommandRequestKind()           {}
func (GetGameStateRequest) isCommandRequestKind()  {}
func (GetPlayersRequest) isCommandRequestKind()    {}
func (GetPlayerRequest) isCommandRequestKind()     {}
func (BroadcastRequest) isCommandRequestKind()     {}
func (MessagePlayerRequest) isCommandRequestKind() {}
func (PunishPlayerRequest) isCommandRequestKind()  {}
func (KickPlayerRequest) isCommandRequestKind()    {}

func (RawRequest) requestTag() string           { return "Raw" }
func (GetGameStateRequest) requestTag() string  { return "GetGameState" }
func (GetPlayersRequest) requestTag() string    { return "GetPlayers" }
func (GetPlayerRequest) requestTag() string     { return "GetPlayer" }
func (BroadcastRequest) requestTag() string     { return "Broadcast" }
func (MessagePlayerRequest) requestTag() string { return "MessagePlayer" }
func (PunishPlayerRequest) requestTag() string  { return "PunishPlayer" }
func (KickPlayerRequest) requestTag() string    { return "KickPlayer" }

func marshalCommandRequestKind(k CommandRequestKind) ([]byte, error) {
	if k == nil {
		return nil, fmt.Errorf("marshal command request: missing kind")
	}
	switch k.(type) {
	case GetGameStateRequest, GetPlayersRequest:
		return json.Marshal(map[string]any{k.requestTag(): nil})
	default:
		return json.Marshal(map[string]CommandRequestKind{k.requestTag(): k})
	}
}

// UnmarshalCommandRequestKind decodes an externally tagged command kind.
// Unit variants are accepted both as {"GetPlayers":null} and as the bare
// string "GetPlayers".
func UnmarshalCommandRequestKind(data []byte) (CommandRequestKind, error) {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		switch bare {
		case "GetGameState":
			return GetGameStateRequest{}, nil
		case "GetPlayers":
			return GetPlayersRequest{}, nil
		default:
			return nil, fmt.Errorf("unmarshal command request: unknown tag %q", bare)
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal command request: %w", err)
	}
	if len(raw) != 1 {
		return nil, fmt.Errorf("unmarshal command request: expected exactly one tag, got %d", len(raw))
	}
	for tag, value := range raw {
		decode := func(v any) error {
			if err := json.Unmarshal(value, v); err != nil {
				return fmt.Errorf("unmarshal command request %s: %w", tag, err)
			}
			return nil
		}
		switch tag {
		case "Raw":
			var k RawRequest
			return k, decode(&k)
		case "GetGameState":
			return GetGameStateRequest{}, nil
		case "GetPlayers":
			return GetPlayersRequest{}, nil
		case "GetPlayer":
			var k GetPlayerRequest
			return k, decode(&k)
		case "Broadcast":
			var k BroadcastRequest
			return k, decode(&k)
		case "MessagePlayer":
			var k MessagePlayerRequest
			return k, decode(&k)
		case "PunishPlayer":
			var k PunishPlayerRequest
			return k, decode(&k)
		case "KickPlayer":
			var k KickPlayerRequest
			return k, decode(&k)
		default:
			return nil, fmt.Errorf("unmarshal command request: unknown tag %q", tag)
		}
	}
	return nil, fmt.Errorf("unmarshal command request: empty object")
}

// ServerWsResponse is the outcome of one dispatched client request.
type ServerWsResponse struct {
	// Failure is set when the command could not be executed at all.
	// A non-200 answer from the game server is not a failure.
	Failure bool

	// Response is the typed result; nil when Failure is set.
	Response CommandResponseKind
}

// MarshalJSON encodes the response as {"Execute":{"failure":...,
// "response":{...}}}.
func (r ServerWsResponse) MarshalJSON() ([]byte, error) {
	var response json.RawMessage
	if r.Response != nil {
		encoded, err := marshalCommandResponseKind(r.Response)
		if err != nil {
			return nil, err
		}
		response = encoded
	} else {
		response = []byte("null")
	}
	return json.Marshal(map[string]any{"Execute": map[string]json.RawMessage{
		"failure":  mustMarshalBool(r.Failure),
		"response": response,
	}})
}

// UnmarshalJSON decodes an Execute response.
func (r *ServerWsResponse) UnmarshalJSON(data []byte) error {
	var raw struct {
		Execute *struct {
			Failure  bool            `json:"failure"`
			Response json.RawMessage `json:"response"`
		} `json:"Execute"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal server response: %w", err)
	}
	if raw.Execute == nil {
		return fmt.Errorf("unmarshal server response: expected an Execute tag")
	}
	r.Failure = raw.Execute.Failure
	r.Response = nil
	if len(raw.Execute.Response) > 0 && string(raw.Execute.Response) != "null" {
		kind, err := unmarshalCommandResponseKind(raw.Execute.Response)
		if err != nil {
			return err
		}
		r.Response = kind
	}
	return nil
}

func mustMarshalBool(b bool) json.RawMessage {
	if b {
		return []byte("true")
	}
	return []byte("false")
}

// CommandResponseKind is the typed result of one executed command.
type CommandResponseKind interface {
	isCommandResponseKind()
	responseTag() string
}

// RawResponse is the unparsed content body of the server's answer.
type RawResponse string

// GameStateResponse carries the fetched match state.
type GameStateResponse parsing.GameState

// PlayersResponse carries all fetched players.
type PlayersResponse []parsing.PlayerData

// PlayerResponse carries one fetched player.
type PlayerResponse parsing.PlayerData

// SuccessResponse confirms a fire-and-forget command.
type SuccessResponse struct{}

func (RawResponse) isCommandResponseKind()       {}
func (GameStateResponse) isCommandResponseKind() {}
func (PlayersResponse) isCommandResponseKind()   {}
func (PlayerResponse) isCommandResponseKind()    {}
func (SuccessResponse) isCommandResponseKind()   {}

func (RawResponse) responseTag() string       { return "Raw" }
func (GameStateResponse) responseTag() string { return "GameState" }
func (PlayersResponse) responseTag() string   { return "Players" }
func (PlayerResponse) responseTag() string    { return "Player" }
func (SuccessResponse) responseTag() string   { return "Success" }

func marshalCommandResponseKind(k CommandResponseKind) ([]byte, error) {
	if _, ok := k.(SuccessResponse); ok {
		return json.Marshal(map[string]any{"Success": nil})
	}
	return json.Marshal(map[string]CommandResponseKind{k.responseTag(): k})
}

func unmarshalCommandResponseKind(data []byte) (CommandResponseKind, error) {
	var bare string
	if err := json.Unmarshal(data, &bare); err == nil {
		if bare == "Success" {
			return SuccessResponse{}, nil
		}
		return nil, fmt.Errorf("unmarshal command response: unknown tag %q", bare)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal command response: %w", err)
	}
	if len(raw) != 1 {
		return nil, fmt.Errorf("unmarshal command response: expected exactly one tag, got %d", len(raw))
	}
	for tag, value := range raw {
		decode := func(v any) error {
			if err := json.Unmarshal(value, v); err != nil {
				return fmt.Errorf("unmarshal command response %s: %w", tag, err)
			}
			return nil
		}
		switch tag {
		case "Raw":
			var k RawResponse
			return k, decode(&k)
		case "GameState":
			var k GameStateResponse
			return k, decode(&k)
		case "Players":
			var k PlayersResponse
			return k, decode(&k)
		case "Player":
			var k PlayerResponse
			return k, decode(&k)
		case "Success":
			return SuccessResponse{}, nil
		default:
			return nil, fmt.Errorf("unmarshal command response: unknown tag %q", tag)
		}
	}
	return nil, fmt.Errorf("unmarshal command response: empty object")
}
