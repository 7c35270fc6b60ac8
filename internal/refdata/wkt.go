package refdata

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// parseWKT parses POINT, MULTIPOINT, LINESTRING, MULTILINESTRING, POLYGON
// and MULTIPOLYGON text into the geometry fields of a Feature. Z and M
// ordinates are ignored.
func parseWKT(s string) (Feature, error) {
	p := &wktParser{s: strings.TrimSpace(s)}
	if p.s == "" {
		return Feature{}, errors.New("empty wkt")
	}

	kind := strings.ToUpper(p.word())
	// "POINT Z", "LINESTRING ZM" and friends
	if mod := strings.ToUpper(p.peekWord()); mod == "Z" || mod == "M" || mod == "ZM" {
		p.word()
	}
	if strings.EqualFold(p.peekWord(), "EMPTY") {
		return Feature{}, nil
	}

	var f Feature
	var err error
	switch kind {
	case "POINT":
		var pts [][2]float64
		if pts, err = p.coords(); err == nil {
			f.Points = pts
		}
	case "MULTIPOINT":
		f.Points, err = p.multiPoint()
	case "LINESTRING":
		var line [][2]float64
		if line, err = p.coords(); err == nil {
			f.Lines = [][][2]float64{line}
		}
	case "MULTILINESTRING":
		f.Lines, err = p.rings()
	case "POLYGON":
		var poly [][][2]float64
		if poly, err = p.rings(); err == nil {
			f.Polygons = [][][][2]float64{poly}
		}
	case "MULTIPOLYGON":
		f.Polygons, err = p.polygons()
	default:
		return Feature{}, fmt.Errorf("unsupported wkt type %q", kind)
	}
	if err != nil {
		return Feature{}, fmt.Errorf("wkt %s: %w", strings.ToLower(kind), err)
	}
	if p.ws(); p.pos != len(p.s) {
		return Feature{}, fmt.Errorf("wkt %s: trailing text at offset %d", strings.ToLower(kind), p.pos)
	}
	return f, nil
}

type wktParser struct {
	s   string
	pos int
}

func (p *wktParser) ws() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t' || p.s[p.pos] == '\n' || p.s[p.pos] == '\r') {
		p.pos++
	}
}

func (p *wktParser) word() string {
	p.ws()
	start := p.pos
	for p.pos < len(p.s) && isLetter(p.s[p.pos]) {
		p.pos++
	}
	return p.s[start:p.pos]
}

func (p *wktParser) peekWord() string {
	save := p.pos
	w := p.word()
	p.pos = save
	return w
}

func (p *wktParser) expect(c byte) error {
	p.ws()
	if p.pos >= len(p.s) || p.s[p.pos] != c {
		return fmt.Errorf("expected %q at offset %d", c, p.pos)
	}
	p.pos++
	return nil
}

// next reports whether a ',' follows (consuming it) or ')' (not consumed).
func (p *wktParser) next() (bool, error) {
	p.ws()
	if p.pos < len(p.s) && p.s[p.pos] == ',' {
		p.pos++
		return true, nil
	}
	if p.pos < len(p.s) && p.s[p.pos] == ')' {
		return false, nil
	}
	return false, fmt.Errorf("expected ',' or ')' at offset %d", p.pos)
}

func (p *wktParser) number() (float64, error) {
	p.ws()
	start := p.pos
	for p.pos < len(p.s) {
		c := p.s[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == '+' || c == 'e' || c == 'E' {
			p.pos++
			continue
		}
		break
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at offset %d", start)
	}
	return strconv.ParseFloat(p.s[start:p.pos], 64)
}

// coord reads "x y [z [m]]".
func (p *wktParser) coord() ([2]float64, error) {
	x, err := p.number()
	if err != nil {
		return [2]float64{}, err
	}
	y, err := p.number()
	if err != nil {
		return [2]float64{}, err
	}
	for {
		p.ws()
		if p.pos >= len(p.s) || p.s[p.pos] == ',' || p.s[p.pos] == ')' {
			break
		}
		if _, err := p.number(); err != nil {
			return [2]float64{}, err
		}
	}
	return [2]float64{x, y}, nil
}

// coords reads "(x y, x y, ...)".
func (p *wktParser) coords() ([][2]float64, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var out [][2]float64
	for {
		c, err := p.coord()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
		more, err := p.next()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	return out, p.expect(')')
}

// multiPoint accepts both "(1 2, 3 4)" and "((1 2), (3 4))".
func (p *wktParser) multiPoint() ([][2]float64, error) {
	save := p.pos
	if err := p.expect('('); err != nil {
		return nil, err
	}
	p.ws()
	nested := p.pos < len(p.s) && p.s[p.pos] == '('
	p.pos = save
	if !nested {
		return p.coords()
	}
	groups, err := p.rings()
	if err != nil {
		return nil, err
	}
	var out [][2]float64
	for _, g := range groups {
		out = append(out, g...)
	}
	return out, nil
}

// rings reads "((...), (...))".
func (p *wktParser) rings() ([][][2]float64, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var out [][][2]float64
	for {
		ring, err := p.coords()
		if err != nil {
			return nil, err
		}
		out = append(out, ring)
		more, err := p.next()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	return out, p.expect(')')
}

// polygons reads "(((...)), ((...)))".
func (p *wktParser) polygons() ([][][][2]float64, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var out [][][][2]float64
	for {
		poly, err := p.rings()
		if err != nil {
			return nil, err
		}
		out = append(out, poly)
		more, err := p.next()
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	return out, p.expect(')')
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
