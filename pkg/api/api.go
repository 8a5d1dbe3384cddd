// Package api defines the signaling protocol spoken with clients.
//
// Every packet is a flat JSON object whose "id" field selects the kind:
//
//	{"id":"joinRoom","name":"ann","userId":"a1","room":"r1","role":"publisher"}
//
// Inbound packets are unwrapped in two passes: first the envelope for the
// kind, then the full message into the matching struct.
package api

import (
	"github.com/goccy/go-json"
)

type Kind string

// Inbound kinds.
const (
	JoinRoom           Kind = "joinRoom"
	ReceiveVideoFrom   Kind = "receiveVideoFrom"
	ReloadStreamFrom   Kind = "reloadStreamFrom"
	OnIceCandidate     Kind = "onIceCandidate"
	ChangeRole         Kind = "changeRole"
	NotifyParticipants Kind = "notifyParticipants"
	LeaveRoom          Kind = "leaveRoom"
	LogIn              Kind = "logIn"
	LogOut             Kind = "logOut"
	RoomId             Kind = "roomId"
	Data               Kind = "data"
	Info               Kind = "info"
)

// Outbound kinds.
const (
	NewParticipantArrived Kind = "newParticipantArrived"
	ExistingParticipants  Kind = "existingParticipants"
	ParticipantLeft       Kind = "participantLeft"
	ReceiveVideoAnswer    Kind = "receiveVideoAnswer"
	IceCandidate          Kind = "iceCandidate"
	Alert                 Kind = "alert"
	Error                 Kind = "error"
)

// Role of a room participant.
type Role string

const (
	RolePublisher Role = "publisher"
	RoleWatcher   Role = "watcher"
	RoleNone      Role = "none"
)

// Envelope is the first-pass view of any inbound packet.
type Envelope struct {
	Id Kind `json:"id"`
}

type (
	JoinRoomRequest struct {
		Name   string `json:"name"`
		UserId string `json:"userId"`
		Room   string `json:"room"`
		Role   Role   `json:"role,omitempty"`
		Record bool   `json:"record,omitempty"`
	}
	VideoFromRequest struct {
		UserId   string `json:"userId"`
		SdpOffer string `json:"sdpOffer"`
	}
	IceCandidateRequest struct {
		UserId    string          `json:"userId"`
		Candidate json.RawMessage `json:"candidate"`
	}
	ChangeRoleRequest struct {
		UserId  string `json:"userId"`
		NewRole Role   `json:"newRole"`
	}
	NotifyRequest struct {
		Payload json.RawMessage `json:"payload"`
	}
	UserIdRequest struct {
		UserId string `json:"userId"`
	}
	DataRequest struct {
		UserId  string          `json:"userId"`
		FromId  string          `json:"fromId"`
		Payload json.RawMessage `json:"payload"`
	}
)

// Participant is the roster entry sent with existingParticipants.
type Participant struct {
	Name string `json:"name"`
	Id   string `json:"id"`
	Role Role   `json:"role"`
}

type (
	NewParticipantEvent struct {
		Id     Kind   `json:"id"`
		Name   string `json:"name"`
		UserId string `json:"userId"`
		Role   Role   `json:"role"`
	}
	ExistingParticipantsEvent struct {
		Id   Kind          `json:"id"`
		Data []Participant `json:"data"`
	}
	ParticipantLeftEvent struct {
		Id     Kind   `json:"id"`
		UserId string `json:"userId"`
	}
	VideoAnswerEvent struct {
		Id        Kind   `json:"id"`
		UserId    string `json:"userId"`
		SdpAnswer string `json:"sdpAnswer"`
	}
	IceCandidateEvent struct {
		Id        Kind            `json:"id"`
		Name      string          `json:"name,omitempty"`
		UserId    string          `json:"userId"`
		Candidate json.RawMessage `json:"candidate"`
	}
	ChangeRoleEvent struct {
		Id      Kind   `json:"id"`
		UserId  string `json:"userId"`
		NewRole Role   `json:"newRole"`
	}
	AlertEvent struct {
		Id      Kind   `json:"id"`
		AlertId string `json:"alertId"`
		Message string `json:"message"`
	}
	ErrorEvent struct {
		Id      Kind   `json:"id"`
		Message string `json:"message"`
	}
	RoomIdEvent struct {
		Id     Kind   `json:"id"`
		RoomId string `json:"roomId"`
	}
	DataEvent struct {
		Id      Kind            `json:"id"`
		FromId  string          `json:"fromId"`
		Payload json.RawMessage `json:"payload"`
	}
)

// AlertOtherLogin is sent to a session kicked by a duplicate login.
const AlertOtherLogin = "otherLogin"

func NewParticipant(name, userId string, role Role) NewParticipantEvent {
	return NewParticipantEvent{Id: NewParticipantArrived, Name: name, UserId: userId, Role: role}
}

func Roster(list []Participant) ExistingParticipantsEvent {
	return ExistingParticipantsEvent{Id: ExistingParticipants, Data: list}
}

func Left(userId string) ParticipantLeftEvent {
	return ParticipantLeftEvent{Id: ParticipantLeft, UserId: userId}
}

func VideoAnswer(userId, sdpAnswer string) VideoAnswerEvent {
	return VideoAnswerEvent{Id: ReceiveVideoAnswer, UserId: userId, SdpAnswer: sdpAnswer}
}

func Ice(name, userId string, candidate []byte) IceCandidateEvent {
	return IceCandidateEvent{Id: IceCandidate, Name: name, UserId: userId, Candidate: candidate}
}

func RoleChanged(userId string, newRole Role) ChangeRoleEvent {
	return ChangeRoleEvent{Id: ChangeRole, UserId: userId, NewRole: newRole}
}

func OtherLoginAlert() AlertEvent {
	return AlertEvent{Id: Alert, AlertId: AlertOtherLogin,
		Message: "someone logged in with your name on another device"}
}

func Err(message string) ErrorEvent { return ErrorEvent{Id: Error, Message: message} }

func NewRoomId(roomId string) RoomIdEvent { return RoomIdEvent{Id: RoomId, RoomId: roomId} }

func Relay(fromId string, payload json.RawMessage) DataEvent {
	return DataEvent{Id: Data, FromId: fromId, Payload: payload}
}

func Unwrap[T any](data []byte) (*T, error) {
	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, err
	}
	return out, nil
}

func Marshal(v any) ([]byte, error) { return json.Marshal(v) }
