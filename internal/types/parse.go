package types

import (
	"fmt"
	"strconv"
	"strings"

	"fortio.org/safecast"
)

// ParseError reports a malformed type string.
type ParseError struct {
	Input  string
	Offset int
	Msg    string
}

func (e *ParseError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("type %q at offset %d: %s", e.Input, e.Offset, e.Msg)
}

// Parse reads a type written in the syntax produced by String and interns it.
func (in *Interner) Parse(s string) (TypeID, error) {
	p := &typeParser{in: in, src: s}
	id, err := p.parseType()
	if err != nil {
		return NoTypeID, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return NoTypeID, p.errorf("unexpected trailing input %q", p.src[p.pos:])
	}
	return id, nil
}

// MustParse is Parse for literals known to be well-formed.
func (in *Interner) MustParse(s string) TypeID {
	id, err := in.Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

type typeParser struct {
	in  *Interner
	src string
	pos int
}

func (p *typeParser) errorf(format string, args ...any) error {
	return &ParseError{Input: p.src, Offset: p.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *typeParser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *typeParser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *typeParser) accept(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *typeParser) expect(tok string) error {
	if !p.accept(tok) {
		return p.errorf("expected %q", tok)
	}
	return nil
}

func (p *typeParser) parseType() (TypeID, error) {
	id, err := p.parseBase()
	if err != nil {
		return NoTypeID, err
	}
	for {
		p.skipSpace()
		switch p.peek() {
		case '*':
			p.pos++
			id = p.in.PointerTo(id)
		case '(':
			p.pos++
			id, err = p.parseFnTail(id)
			if err != nil {
				return NoTypeID, err
			}
		default:
			return id, nil
		}
	}
}

func (p *typeParser) parseFnTail(result TypeID) (TypeID, error) {
	var params []TypeID
	variadic := false
	if p.accept(")") {
		return p.in.RegisterFn(nil, result, false), nil
	}
	for {
		if p.accept("...") {
			variadic = true
			if err := p.expect(")"); err != nil {
				return NoTypeID, err
			}
			break
		}
		param, err := p.parseType()
		if err != nil {
			return NoTypeID, err
		}
		params = append(params, param)
		if p.accept(")") {
			break
		}
		if err := p.expect(","); err != nil {
			return NoTypeID, err
		}
	}
	return p.in.RegisterFn(params, result, variadic), nil
}

func (p *typeParser) parseBase() (TypeID, error) {
	p.skipSpace()
	b := p.in.Builtins()
	switch {
	case p.accept("void"):
		return b.Void, nil
	case p.accept("label"):
		return b.Label, nil
	case p.accept("float"):
		return b.Float, nil
	case p.accept("double"):
		return b.Double, nil
	case p.accept("<{"):
		return p.parseStructTail("}>", true)
	case p.accept("{"):
		return p.parseStructTail("}", false)
	case p.accept("["):
		return p.parseArrayTail()
	case p.peek() == 'i':
		p.pos++
		n, err := p.parseUint()
		if err != nil {
			return NoTypeID, err
		}
		if n == 0 || n > uint64(MaxIntWidth) {
			return NoTypeID, p.errorf("unsupported integer width %d", n)
		}
		w, err := safecast.Conv[uint16](n)
		if err != nil {
			return NoTypeID, p.errorf("integer width: %v", err)
		}
		return p.in.Int(Width(w)), nil
	default:
		return NoTypeID, p.errorf("expected a type")
	}
}

func (p *typeParser) parseStructTail(closer string, packed bool) (TypeID, error) {
	var fields []TypeID
	if p.accept(closer) {
		return p.in.RegisterStruct(nil, packed), nil
	}
	for {
		f, err := p.parseType()
		if err != nil {
			return NoTypeID, err
		}
		fields = append(fields, f)
		if p.accept(closer) {
			break
		}
		if err := p.expect(","); err != nil {
			return NoTypeID, err
		}
	}
	return p.in.RegisterStruct(fields, packed), nil
}

func (p *typeParser) parseArrayTail() (TypeID, error) {
	p.skipSpace()
	n, err := p.parseUint()
	if err != nil {
		return NoTypeID, err
	}
	count, err := safecast.Conv[uint32](n)
	if err != nil {
		return NoTypeID, p.errorf("array length: %v", err)
	}
	if err := p.expect("x"); err != nil {
		return NoTypeID, err
	}
	elem, err := p.parseType()
	if err != nil {
		return NoTypeID, err
	}
	if err := p.expect("]"); err != nil {
		return NoTypeID, err
	}
	return p.in.ArrayOf(elem, count), nil
}

func (p *typeParser) parseUint() (uint64, error) {
	start := p.pos
	for p.pos < len(p.src) && p.src[p.pos] >= '0' && p.src[p.pos] <= '9' {
		p.pos++
	}
	if start == p.pos {
		return 0, p.errorf("expected a number")
	}
	n, err := strconv.ParseUint(p.src[start:p.pos], 10, 64)
	if err != nil {
		return 0, p.errorf("bad number: %v", err)
	}
	return n, nil
}
