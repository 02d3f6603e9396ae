package stdlib

import (
	"fmt"
	"regexp"

	"github.com/azathrix/minipanda/lang/machine"
)

// The regex sub-object. Patterns use Go's RE2 syntax; compiled patterns are
// cached per process.
func regexObject() *machine.Object {
	obj := machine.NewObject()
	native(obj, "match", regexMatch)
	native(obj, "find", regexFind)
	native(obj, "findAll", regexFindAll)
	native(obj, "replace", regexReplace)
	native(obj, "split", regexSplit)
	return obj
}

var regexCache = map[string]*regexp.Regexp{}

func compilePattern(name, pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid pattern: %s", name, err.Error())
	}
	regexCache[pattern] = re
	return re, nil
}

func regexArgs(name string, args []machine.Value, n int) (*regexp.Regexp, []string, error) {
	if err := wantArgs(name, args, n, n); err != nil {
		return nil, nil, err
	}
	pattern, err := wantString(name, args[0], 0)
	if err != nil {
		return nil, nil, err
	}
	re, err := compilePattern(name, pattern)
	if err != nil {
		return nil, nil, err
	}
	rest := make([]string, 0, n-1)
	for i := 1; i < n; i++ {
		s, err := wantString(name, args[i], i)
		if err != nil {
			return nil, nil, err
		}
		rest = append(rest, s)
	}
	return re, rest, nil
}

func regexMatch(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	re, rest, err := regexArgs("regex.match", args, 2)
	if err != nil {
		return nil, err
	}
	return machine.Bool(re.MatchString(rest[0])), nil
}

func regexFind(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	re, rest, err := regexArgs("regex.find", args, 2)
	if err != nil {
		return nil, err
	}
	loc := re.FindStringIndex(rest[0])
	if loc == nil {
		return machine.Null, nil
	}
	return machine.String(rest[0][loc[0]:loc[1]]), nil
}

func regexFindAll(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	re, rest, err := regexArgs("regex.findAll", args, 2)
	if err != nil {
		return nil, err
	}
	matches := re.FindAllString(rest[0], -1)
	elems := make([]machine.Value, len(matches))
	for i, s := range matches {
		elems[i] = machine.String(s)
	}
	return machine.NewArray(elems), nil
}

func regexReplace(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	re, rest, err := regexArgs("regex.replace", args, 3)
	if err != nil {
		return nil, err
	}
	return machine.String(re.ReplaceAllString(rest[0], rest[1])), nil
}

func regexSplit(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	re, rest, err := regexArgs("regex.split", args, 2)
	if err != nil {
		return nil, err
	}
	parts := re.Split(rest[0], -1)
	elems := make([]machine.Value, len(parts))
	for i, s := range parts {
		elems[i] = machine.String(s)
	}
	return machine.NewArray(elems), nil
}
