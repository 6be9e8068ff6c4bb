package frames

import (
	"github.com/amqpio/amqp10/internal/buffer"
	"github.com/amqpio/amqp10/internal/encoding"
)

// SaslCode is the outcome code carried on a SaslOutcome frame.
type SaslCode uint8

const (
	SaslCodeOK      SaslCode = 0
	SaslCodeAuth    SaslCode = 1
	SaslCodeSys     SaslCode = 2
	SaslCodeSysPerm SaslCode = 3
	SaslCodeSysTemp SaslCode = 4
)

// SaslMechanisms advertises the SASL mechanisms a server supports; it's
// the first frame sent by the server after the SASL protocol header.
type SaslMechanisms struct {
	Mechanisms encoding.MultiSymbol
}

func (s *SaslMechanisms) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, encoding.TypeCodeSASLMechanisms, []encoding.MarshalField{
		{Value: &s.Mechanisms, Omit: false},
	})
}

func (s *SaslMechanisms) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, encoding.TypeCodeSASLMechanisms,
		encoding.UnmarshalField{Field: &s.Mechanisms},
	)
}

// SaslInit selects a mechanism and supplies the client's initial response.
type SaslInit struct {
	Mechanism       encoding.Symbol
	InitialResponse []byte
	Hostname        string
}

func (s *SaslInit) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, encoding.TypeCodeSASLInit, []encoding.MarshalField{
		{Value: &s.Mechanism, Omit: false},
		{Value: &s.InitialResponse, Omit: len(s.InitialResponse) == 0},
		{Value: &s.Hostname, Omit: s.Hostname == ""},
	})
}

func (s *SaslInit) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, encoding.TypeCodeSASLInit,
		encoding.UnmarshalField{Field: &s.Mechanism},
		encoding.UnmarshalField{Field: &s.InitialResponse},
		encoding.UnmarshalField{Field: &s.Hostname},
	)
}

// SaslChallenge carries a mechanism-specific challenge from the server.
type SaslChallenge struct {
	Challenge []byte
}

func (s *SaslChallenge) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, encoding.TypeCodeSASLChallenge, []encoding.MarshalField{
		{Value: &s.Challenge, Omit: false},
	})
}

func (s *SaslChallenge) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, encoding.TypeCodeSASLChallenge,
		encoding.UnmarshalField{Field: &s.Challenge},
	)
}

// SaslResponse carries a mechanism-specific response to a challenge.
type SaslResponse struct {
	Response []byte
}

func (s *SaslResponse) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, encoding.TypeCodeSASLResponse, []encoding.MarshalField{
		{Value: &s.Response, Omit: false},
	})
}

func (s *SaslResponse) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, encoding.TypeCodeSASLResponse,
		encoding.UnmarshalField{Field: &s.Response},
	)
}

// SaslOutcome concludes SASL negotiation with an outcome code.
type SaslOutcome struct {
	Code           SaslCode
	AdditionalData []byte
}

func (s *SaslOutcome) Marshal(wr *buffer.Buffer) error {
	code := uint8(s.Code)
	return encoding.MarshalComposite(wr, encoding.TypeCodeSASLOutcome, []encoding.MarshalField{
		{Value: &code, Omit: false},
		{Value: &s.AdditionalData, Omit: len(s.AdditionalData) == 0},
	})
}

func (s *SaslOutcome) Unmarshal(r *buffer.Buffer) error {
	var code uint8
	err := encoding.UnmarshalComposite(r, encoding.TypeCodeSASLOutcome,
		encoding.UnmarshalField{Field: &code, HandleNull: func() error { return nil }},
		encoding.UnmarshalField{Field: &s.AdditionalData},
	)
	s.Code = SaslCode(code)
	return err
}
