package amqp

import "fmt"

// Handle identifies a connection registered with a Driver.
type Handle int

// Driver multiplexes poll-driven ticks across every Conn registered with
// it, round-robin, so one application thread can service many connections
// without ever blocking on any single one.
type Driver struct {
	connections map[Handle]*Conn
	handles     []Handle
	idCounter   Handle
	lastChecked Handle
}

// NewDriver returns an empty Driver.
func NewDriver() *Driver {
	return &Driver{connections: make(map[Handle]*Conn)}
}

// Register adds c to the set of connections this driver services and
// returns a handle for looking it up again.
func (d *Driver) Register(c *Conn) Handle {
	h := d.idCounter
	d.connections[h] = c
	d.handles = append(d.handles, h)
	d.idCounter++
	return h
}

// Connection looks up a connection previously registered with this
// driver; it returns nil if h is unknown.
func (d *Driver) Connection(h Handle) *Conn {
	return d.connections[h]
}

func (d *Driver) nextHandle(current Handle) Handle {
	return (current + 1) % Handle(len(d.handles))
}

// Poll advances one tick on each registered connection, starting just
// after the cursor left by the previous call, and stops at the first
// connection that appended new events. A full sweep that makes no
// progress anywhere reports ok=false. Any non-would-block error aborts the
// sweep immediately and is returned alongside the handle that produced it.
func (d *Driver) Poll(events *EventBuffer) (Handle, bool, error) {
	if len(d.handles) == 0 {
		return 0, false, nil
	}
	last := d.lastChecked
	for {
		next := d.nextHandle(d.lastChecked)
		conn, ok := d.connections[next]
		if !ok {
			return 0, false, fmt.Errorf("amqp: handle %d missing", next)
		}

		progressed, err := conn.poll(events)
		d.lastChecked = next
		if err != nil {
			return next, false, err
		}
		if progressed {
			return next, true, nil
		}
		if next == last {
			return 0, false, nil
		}
	}
}
