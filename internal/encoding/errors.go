package encoding

import (
	"fmt"

	"github.com/amqpio/amqp10/internal/buffer"
)

// Error is the error record carried by Close/End/Detach/Disposition
// performatives.
//
//	<type name="error" class="composite" source="list">
//	    <descriptor name="amqp:error:list" code="0x00000000:0x0000001d"/>
//	    <field name="condition" type="symbol" requires="error-condition" mandatory="true"/>
//	    <field name="description" type="string"/>
//	    <field name="info" type="fields"/>
//	</type>
type Error struct {
	Condition   ErrCond
	Description string
	Info        map[interface{}]interface{}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Description == "" {
		return fmt.Sprintf("%s", e.Condition)
	}
	return fmt.Sprintf("%s: %s", e.Condition, e.Description)
}

func (e *Error) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeError, []MarshalField{
		{Value: &e.Condition, Omit: false},
		{Value: &e.Description, Omit: e.Description == ""},
		{Value: e.Info, Omit: len(e.Info) == 0},
	})
}

func (e *Error) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeError,
		UnmarshalField{Field: &e.Condition, HandleNull: func() error { return fmt.Errorf("Error.Condition is required") }},
		UnmarshalField{Field: &e.Description},
		UnmarshalField{Field: &e.Info},
	)
}
