package amqp

import (
	"fmt"

	"github.com/amqpio/amqp10/internal/encoding"
	"github.com/amqpio/amqp10/internal/frames"
)

// SaslMechanism identifies a SASL mechanism token recognised during
// negotiation. Only Plain has an initial-response builder here; the others
// are recognised so a peer advertising them doesn't immediately fail
// negotiation, but a client configured to select one of them errors out
// when asked to build a response.
type SaslMechanism encoding.Symbol

const (
	SaslMechanismPlain       SaslMechanism = "PLAIN"
	SaslMechanismAnonymous   SaslMechanism = "ANONYMOUS"
	SaslMechanismCramMD5     SaslMechanism = "CRAM-MD5"
	SaslMechanismScramSHA1   SaslMechanism = "SCRAM-SHA-1"
	SaslMechanismScramSHA256 SaslMechanism = "SCRAM-SHA-256"
)

// saslClient drives the client side of SASL negotiation for a single
// connection.
type saslClient struct {
	mechanism SaslMechanism
	username  string
	password  string
}

// buildInitialResponse returns the bytes to carry as SaslInit's
// initial-response for the negotiated mechanism.
func (s *saslClient) buildInitialResponse() ([]byte, error) {
	switch s.mechanism {
	case SaslMechanismPlain:
		// RFC 4616: authzid NUL authcid NUL passwd, three distinct fields.
		// authzid is left empty; the identity to authenticate as is
		// conveyed by authcid alone.
		resp := make([]byte, 0, len(s.username)+len(s.password)+2)
		resp = append(resp, 0)
		resp = append(resp, s.username...)
		resp = append(resp, 0)
		resp = append(resp, s.password...)
		return resp, nil
	default:
		return nil, fmt.Errorf("amqp: no initial-response builder for SASL mechanism %q", s.mechanism)
	}
}

// mechanismOffered reports whether want is present in offered.
func mechanismOffered(offered encoding.MultiSymbol, want SaslMechanism) bool {
	for _, m := range offered {
		if SaslMechanism(m) == want {
			return true
		}
	}
	return false
}

// doSasl drives the client side of the Sasl state: wait for the server's
// SaslMechanisms, answer with SaslInit, then wait for SaslOutcome. There is
// no server-side SASL role yet; a Conn only enters this state when it was
// configured with credentials via ConnOptions.
func (c *Conn) doSasl(events *EventBuffer) error {
	if c.sasl == nil {
		return nil
	}
	fr, ok, err := c.transport.ReadFrame()
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	switch body := fr.Body.(type) {
	case *frames.SaslMechanisms:
		if !mechanismOffered(body.Mechanisms, c.sasl.mechanism) {
			c.transport.Close()
			c.state = csEnd
			return nil
		}
		resp, err := c.sasl.buildInitialResponse()
		if err != nil {
			return err
		}
		init := &frames.SaslInit{
			Mechanism:       encoding.Symbol(c.sasl.mechanism),
			InitialResponse: resp,
		}
		if err := c.transport.WriteFrame(Frame{Type: frames.TypeSASL, Body: init}); err != nil {
			return err
		}
		if err := c.transport.Flush(); err != nil && err != errWouldBlock {
			return err
		}

	case *frames.SaslOutcome:
		if body.Code == frames.SaslCodeOK {
			if err := c.transport.WriteProtocolHeader(amqpHeader); err != nil {
				return err
			}
			if err := c.transport.Flush(); err != nil && err != errWouldBlock {
				return err
			}
			c.state = csHdrExch
		} else {
			c.transport.Close()
			c.state = csEnd
		}

	default:
		return framingError()
	}
	return nil
}
