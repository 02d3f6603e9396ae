package stdlib

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/azathrix/minipanda/lang/machine"
)

// The json sub-object. Parsing goes through the stdlib token stream so that
// object key order is preserved in the insertion-ordered Object type;
// stringify walks values directly for the same reason.
func jsonObject() *machine.Object {
	obj := machine.NewObject()
	native(obj, "parse", jsonParse)
	native(obj, "stringify", jsonStringify)
	return obj
}

func jsonParse(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("json.parse", args, 1, 1); err != nil {
		return nil, err
	}
	s, err := wantString("json.parse", args[0], 0)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	v, err := decodeJSON(dec)
	if err != nil {
		return nil, fmt.Errorf("json.parse: %s", err.Error())
	}
	// reject trailing content
	if _, err := dec.Token(); err == nil {
		return nil, fmt.Errorf("json.parse: unexpected trailing content")
	}
	return v, nil
}

func decodeJSON(dec *json.Decoder) (machine.Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	return decodeJSONToken(dec, tok)
}

func decodeJSONToken(dec *json.Decoder, tok json.Token) (machine.Value, error) {
	switch tok := tok.(type) {
	case nil:
		return machine.Null, nil
	case bool:
		return machine.Bool(tok), nil
	case json.Number:
		n, err := tok.Float64()
		if err != nil {
			return nil, err
		}
		return machine.Number(n), nil
	case string:
		return machine.String(tok), nil
	case json.Delim:
		switch tok {
		case '[':
			arr := machine.NewArray(nil)
			for dec.More() {
				v, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				arr.Elems = append(arr.Elems, v)
			}
			if _, err := dec.Token(); err != nil { // closing bracket
				return nil, err
			}
			return arr, nil
		case '{':
			obj := machine.NewObject()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("invalid object key %v", keyTok)
				}
				v, err := decodeJSON(dec)
				if err != nil {
					return nil, err
				}
				obj.Set(key, v)
			}
			if _, err := dec.Token(); err != nil { // closing brace
				return nil, err
			}
			return obj, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

func jsonStringify(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("json.stringify", args, 1, 2); err != nil {
		return nil, err
	}
	indent := ""
	if len(args) == 2 {
		switch v := args[1].(type) {
		case machine.Number:
			indent = strings.Repeat(" ", int(v))
		case machine.String:
			indent = string(v)
		}
	}
	var sb strings.Builder
	if err := encodeJSON(&sb, args[0], indent, ""); err != nil {
		return nil, fmt.Errorf("json.stringify: %s", err.Error())
	}
	return machine.String(sb.String()), nil
}

func encodeJSON(sb *strings.Builder, v machine.Value, indent, prefix string) error {
	nl, inner := "", prefix
	if indent != "" {
		nl = "\n"
		inner = prefix + indent
	}

	switch v := v.(type) {
	case machine.NullType:
		sb.WriteString("null")
	case machine.Bool:
		sb.WriteString(v.String())
	case machine.Number:
		f := float64(v)
		sb.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	case machine.String:
		b, err := json.Marshal(string(v))
		if err != nil {
			return err
		}
		sb.Write(b)
	case *machine.Array:
		if len(v.Elems) == 0 {
			sb.WriteString("[]")
			return nil
		}
		sb.WriteString("[" + nl)
		for i, e := range v.Elems {
			sb.WriteString(inner)
			if err := encodeJSON(sb, e, indent, inner); err != nil {
				return err
			}
			if i < len(v.Elems)-1 {
				sb.WriteString(",")
			}
			sb.WriteString(nl)
		}
		sb.WriteString(prefix + "]")
	case *machine.Object:
		keys := v.Keys()
		if len(keys) == 0 {
			sb.WriteString("{}")
			return nil
		}
		sb.WriteString("{" + nl)
		for i, k := range keys {
			sb.WriteString(inner)
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			sb.Write(kb)
			sb.WriteString(":")
			if indent != "" {
				sb.WriteString(" ")
			}
			val, _ := v.Get(k)
			if err := encodeJSON(sb, val, indent, inner); err != nil {
				return err
			}
			if i < len(keys)-1 {
				sb.WriteString(",")
			}
			sb.WriteString(nl)
		}
		sb.WriteString(prefix + "}")
	case *machine.Instance:
		return encodeJSON(sb, v.Fields, indent, prefix)
	default:
		return fmt.Errorf("value of type %s cannot be serialized", v.Type())
	}
	return nil
}
