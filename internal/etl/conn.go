package etl

import (
	"fmt"

	starctx "github.com/leapstack-labs/dwprobe/internal/starlark"
	"github.com/leapstack-labs/dwprobe/pkg/core"
	"go.starlark.net/starlark"
)

// Conn is a database connection as seen by a script. Connections bound in
// by the caller carry a *core.Connection; connections a script opens itself
// with connect() are detached and fail on use.
type Conn struct {
	conn   *core.Connection
	driver string
	dsn    string
}

var _ starlark.HasAttrs = (*Conn)(nil)

// Bind wraps a caller-supplied connection for use as a scope binding.
func Bind(conn *core.Connection) *Conn {
	return &Conn{conn: conn}
}

func (c *Conn) String() string {
	if c.conn != nil {
		return fmt.Sprintf("<connection %s>", c.conn)
	}
	return fmt.Sprintf("<connection %s:%s (detached)>", c.driver, c.dsn)
}
func (c *Conn) Type() string          { return "connection" }
func (c *Conn) Freeze()               {}
func (c *Conn) Truth() starlark.Bool  { return starlark.True }
func (c *Conn) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: connection") }

func (c *Conn) Attr(name string) (starlark.Value, error) {
	switch name {
	case "name":
		if c.conn != nil {
			return starlark.String(c.conn.Name), nil
		}
		return starlark.String(c.dsn), nil
	case "close", "commit", "rollback":
		// Borrowed connections are owned by the caller.
		return starlark.NewBuiltin(name, func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return starlark.None, nil
		}), nil
	}
	return nil, nil
}

func (c *Conn) AttrNames() []string { return []string{"close", "commit", "name", "rollback"} }

// Core returns the underlying connection, failing for detached connections.
func (c *Conn) Core() (*core.Connection, error) {
	if c.conn == nil {
		return nil, fmt.Errorf("connection %s:%s is not bound to a database", c.driver, c.dsn)
	}
	return c.conn, nil
}

// ConnectionOf resolves a connection or connection wrapper value to the
// connection it reads and writes through.
func ConnectionOf(v starlark.Value) (*core.Connection, error) {
	switch c := v.(type) {
	case *Conn:
		return c.Core()
	case *Wrapper:
		return c.conn.Core()
	case nil, starlark.NoneType:
		return nil, fmt.Errorf("no connection")
	default:
		return nil, fmt.Errorf("expected connection, got %s", v.Type())
	}
}

// connect(driver, dsn) opens nothing: it records the script's own
// connection so the script still runs when its connections are replaced.
func connect(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var driver, dsn string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "driver", &driver, "dsn?", &dsn); err != nil {
		return nil, err
	}
	return &Conn{driver: driver, dsn: dsn}, nil
}

// driverConnect returns the connect function of a driver module such as
// sqlite3 or psycopg2. Any arguments are accepted and recorded.
func driverConnect(driver string) *starlark.Builtin {
	return starlark.NewBuiltin(driver+".connect", func(_ *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		c := &Conn{driver: driver}
		if len(args) > 0 {
			if s, ok := starlark.AsString(args[0]); ok {
				c.dsn = s
			}
		}
		for _, kv := range kwargs {
			if c.dsn != "" {
				break
			}
			if s, ok := starlark.AsString(kv[1]); ok {
				c.dsn = s
			}
		}
		return c, nil
	})
}

// Wrapper is the target-side connection wrapper. Creating one makes it the
// default target of tables constructed afterwards.
type Wrapper struct {
	conn *Conn
	rt   *Runtime
}

var _ starlark.HasAttrs = (*Wrapper)(nil)

func (w *Wrapper) String() string        { return fmt.Sprintf("<ConnectionWrapper %s>", w.conn) }
func (w *Wrapper) Type() string          { return "ConnectionWrapper" }
func (w *Wrapper) Freeze()               {}
func (w *Wrapper) Truth() starlark.Bool  { return starlark.True }
func (w *Wrapper) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: ConnectionWrapper") }

func (w *Wrapper) AttrNames() []string {
	return []string{"close", "commit", "connection", "execute", "query", "rollback"}
}

func (w *Wrapper) Attr(name string) (starlark.Value, error) {
	switch name {
	case "connection":
		return w.conn, nil
	case "commit", "close":
		return starlark.NewBuiltin(name, w.commit), nil
	case "rollback":
		return starlark.NewBuiltin(name, func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return starlark.None, nil
		}), nil
	case "execute":
		return starlark.NewBuiltin(name, w.execute), nil
	case "query":
		return starlark.NewBuiltin(name, w.query), nil
	}
	return nil, nil
}

// commit flushes the batch tables writing through this wrapper.
func (w *Wrapper) commit(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	if err := w.rt.flush(starctx.Context(thread), w); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.None, nil
}

func (w *Wrapper) execute(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var stmt string
	var params starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "stmt", &stmt, "arguments?", &params); err != nil {
		return nil, err
	}
	conn, err := w.conn.Core()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	q, qargs, err := queryArgs(conn.Placeholder, stmt, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	if _, err := conn.Exec(starctx.Context(thread), q, qargs...); err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.None, nil
}

func (w *Wrapper) query(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var stmt string
	var params starlark.Value = starlark.None
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "stmt", &stmt, "arguments?", &params); err != nil {
		return nil, err
	}
	conn, err := w.conn.Core()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	q, qargs, err := queryArgs(conn.Placeholder, stmt, params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	rows, err := queryDicts(starctx.Context(thread), conn, q, qargs, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.NewList(rows), nil
}

// newWrapper implements ConnectionWrapper(connection).
func newWrapper(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	rt, err := FromThread(thread)
	if err != nil {
		return nil, err
	}
	var connVal starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "connection", &connVal); err != nil {
		return nil, err
	}
	c, ok := connVal.(*Conn)
	if !ok {
		return nil, fmt.Errorf("%s: expected connection, got %s", b.Name(), connVal.Type())
	}

	w := &Wrapper{conn: c, rt: rt}
	rt.defaultTarget = w
	rt.logger.Debug("connection wrapper created", "connection", c.String())
	return w, nil
}
