package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// ErrInvalidSignal is returned when signal data is neither a session
// description nor a connectivity candidate.
var ErrInvalidSignal = errors.New("invalid signal data")

// SignalKind tags the two payload kinds a signal can carry.
type SignalKind int

const (
	SignalKindDescription SignalKind = iota + 1
	SignalKindCandidate
)

func (k SignalKind) String() string {
	switch k {
	case SignalKindDescription:
		return "description"
	case SignalKindCandidate:
		return "candidate"
	default:
		return "unknown"
	}
}

// SignalData is the negotiation payload relayed between the two participants
// of a room. Exactly one of Description and Candidate is set.
//
// On the wire a description is {"type":"offer"|"answer","sdp":"..."} and a
// candidate is {"candidate":{"candidate":"...","sdpMid":"0",...}}, which is
// what browsers produce from RTCSessionDescription and RTCIceCandidate.
type SignalData struct {
	Description *webrtc.SessionDescription
	Candidate   *webrtc.ICECandidateInit
}

// DescriptionSignal wraps an offer or answer.
func DescriptionSignal(desc webrtc.SessionDescription) SignalData {
	return SignalData{Description: &desc}
}

// CandidateSignal wraps a connectivity candidate.
func CandidateSignal(c webrtc.ICECandidateInit) SignalData {
	return SignalData{Candidate: &c}
}

// Kind reports which payload is set. It returns 0 for a zero SignalData.
func (s SignalData) Kind() SignalKind {
	switch {
	case s.Description != nil:
		return SignalKindDescription
	case s.Candidate != nil:
		return SignalKindCandidate
	default:
		return 0
	}
}

type wireSignal struct {
	Type      string                   `json:"type,omitempty"`
	SDP       string                   `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit `json:"candidate,omitempty"`
}

func (s SignalData) MarshalJSON() ([]byte, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.Description != nil {
		return json.Marshal(wireSignal{Type: s.Description.Type.String(), SDP: s.Description.SDP})
	}
	return json.Marshal(wireSignal{Candidate: s.Candidate})
}

func (s *SignalData) UnmarshalJSON(b []byte) error {
	var w wireSignal
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}

	switch {
	case w.Type != "" && w.Candidate != nil:
		return fmt.Errorf("%w: both description and candidate set", ErrInvalidSignal)
	case w.Type != "":
		t := webrtc.NewSDPType(w.Type)
		if t != webrtc.SDPTypeOffer && t != webrtc.SDPTypeAnswer {
			return fmt.Errorf("%w: unsupported description type %q", ErrInvalidSignal, w.Type)
		}
		if w.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", ErrInvalidSignal, w.Type)
		}
		*s = SignalData{Description: &webrtc.SessionDescription{Type: t, SDP: w.SDP}}
	case w.Candidate != nil:
		*s = SignalData{Candidate: w.Candidate}
	default:
		return fmt.Errorf("%w: empty payload", ErrInvalidSignal)
	}
	return nil
}

func (s SignalData) validate() error {
	switch {
	case s.Description != nil && s.Candidate != nil:
		return fmt.Errorf("%w: both description and candidate set", ErrInvalidSignal)
	case s.Description != nil:
		if t := s.Description.Type; t != webrtc.SDPTypeOffer && t != webrtc.SDPTypeAnswer {
			return fmt.Errorf("%w: unsupported description type %q", ErrInvalidSignal, t.String())
		}
	case s.Candidate == nil:
		return fmt.Errorf("%w: empty payload", ErrInvalidSignal)
	}
	return nil
}
