package exemplar

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/meigma/dbpf/internal/dbpftype"
)

var (
	hexPattern    = regexp.MustCompile(`(?i)-?0x[0-9a-f]+`)
	stringPattern = regexp.MustCompile(`\{"(.*)"\}`)
	floatPattern  = regexp.MustCompile(`[+-]?\d+(\.\d+)?([eE][+-]?\d+)?`)
)

var kindNames = map[string]ValueKind{
	"Uint8":   KindUint8,
	"Uint16":  KindUint16,
	"Uint32":  KindUint32,
	"Sint32":  KindSint32,
	"Sint64":  KindSint64,
	"Float32": KindFloat32,
	"Bool":    KindBool,
	"String":  KindString,
}

// parseText reads the text encoding:
//
//	ParentCohort=Key:{0x00000000,0x00000000,0x00000000}
//	PropCount=0x00000002
//	0x00000010:{"Exemplar Type"}=Uint32:0:{0x00000002}
//	0x00000020:{"Exemplar Name"}=String:1:{"Name"}
func (e *Exemplar) parseText(body []byte) error {
	text := strings.ReplaceAll(string(body), "\r\n", "\n")
	lines := strings.Split(text, "\n")

	i := slices.IndexFunc(lines, func(l string) bool { return strings.Contains(l, "ParentCohort") })
	if i < 0 {
		return fmt.Errorf("exemplar: text form has no ParentCohort: %w", dbpftype.ErrCorruptArchive)
	}
	parent := hexPattern.FindAllString(lines[i], 3)
	if len(parent) != 3 {
		return fmt.Errorf("exemplar: text parent %q: %w", lines[i], dbpftype.ErrCorruptArchive)
	}
	var tgi [3]uint32
	for j, h := range parent {
		v, err := strconv.ParseUint(h, 0, 32)
		if err != nil {
			return fmt.Errorf("exemplar: text parent %q: %w", lines[i], dbpftype.ErrCorruptArchive)
		}
		tgi[j] = uint32(v)
	}
	e.Parent = dbpftype.TGI{Type: tgi[0], Group: tgi[1], Instance: tgi[2]}

	for i++; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "PropCount") {
			continue
		}
		p, err := parseTextProperty(line)
		if err != nil {
			return err
		}
		e.Properties = append(e.Properties, p)
	}
	return nil
}

func parseTextProperty(line string) (Property, error) {
	bad := func(why string) (Property, error) {
		return Property{}, fmt.Errorf("exemplar: text property %q: %s: %w", line, why, dbpftype.ErrCorruptArchive)
	}

	idStr, rest, ok := strings.Cut(line, ":")
	if !ok {
		return bad("missing id")
	}
	id, err := strconv.ParseUint(strings.TrimSpace(idStr), 0, 32)
	if err != nil {
		return bad("bad id")
	}
	// The comment may contain '=' or ':', so cut after its closing brace.
	if strings.HasPrefix(rest, "{") {
		if end := strings.Index(rest, "}"); end >= 0 {
			rest = rest[end+1:]
		}
	}
	_, rest, ok = strings.Cut(rest, "=")
	if !ok {
		return bad("missing value")
	}
	kindName, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return bad("missing kind")
	}
	kind, ok := kindNames[strings.TrimSpace(kindName)]
	if !ok {
		return bad("unknown kind")
	}
	repsStr, rest, ok := strings.Cut(rest, ":")
	if !ok {
		return bad("missing count")
	}
	reps, err := strconv.Atoi(strings.TrimSpace(repsStr))
	if err != nil {
		return bad("bad count")
	}

	p := Property{ID: uint32(id), Kind: kind, Multi: reps > 0}
	if kind == KindString {
		p.Multi = true
		if m := stringPattern.FindStringSubmatch(rest); m != nil {
			p.Str = m[1]
		}
		return p, nil
	}

	inner := rest
	if start := strings.Index(inner, "{"); start >= 0 {
		inner = inner[start+1:]
	}
	if end := strings.LastIndex(inner, "}"); end >= 0 {
		inner = inner[:end]
	}
	for field := range strings.SplitSeq(inner, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := parseTextValue(kind, field)
		if err != nil {
			return bad(err.Error())
		}
		p.Values = append(p.Values, v)
	}
	return p, nil
}

func parseTextValue(kind ValueKind, field string) (uint64, error) {
	switch kind {
	case KindBool:
		return boolBits(strings.EqualFold(field, "true")), nil
	case KindFloat32:
		m := floatPattern.FindString(field)
		f, err := strconv.ParseFloat(m, 32)
		if err != nil {
			return 0, err
		}
		return uint64(math.Float32bits(float32(f))), nil
	case KindSint32, KindSint64:
		h := hexPattern.FindString(field)
		var v uint64
		if s, err := strconv.ParseInt(h, 0, 64); err == nil {
			v = uint64(s) //nolint:gosec // raw bit pattern
		} else if v, err = strconv.ParseUint(h, 0, 64); err != nil {
			return 0, err
		}
		if kind == KindSint32 {
			return uint64(int64(int32(uint32(v)))), nil //nolint:gosec // sign extension
		}
		return v, nil
	default:
		return strconv.ParseUint(hexPattern.FindString(field), 0, 64)
	}
}

func boolBits(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
