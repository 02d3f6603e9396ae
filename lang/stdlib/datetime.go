package stdlib

import (
	"time"

	"github.com/azathrix/minipanda/lang/machine"
)

// The date sub-object. Timestamps are milliseconds since the Unix epoch, as
// produced by the now built-in.
func dateObject() *machine.Object {
	obj := machine.NewObject()
	native(obj, "now", biNow)
	native(obj, "format", dateFormat)
	native(obj, "year", datePart("date.year", func(t time.Time) int { return t.Year() }))
	native(obj, "month", datePart("date.month", func(t time.Time) int { return int(t.Month()) }))
	native(obj, "day", datePart("date.day", func(t time.Time) int { return t.Day() }))
	native(obj, "hour", datePart("date.hour", func(t time.Time) int { return t.Hour() }))
	native(obj, "minute", datePart("date.minute", func(t time.Time) int { return t.Minute() }))
	native(obj, "second", datePart("date.second", func(t time.Time) int { return t.Second() }))
	return obj
}

func tsArg(name string, args []machine.Value) (time.Time, error) {
	ms, err := wantNumber(name, args[0], 0)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(int64(ms)), nil
}

func dateFormat(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
	if err := wantArgs("date.format", args, 1, 2); err != nil {
		return nil, err
	}
	t, err := tsArg("date.format", args)
	if err != nil {
		return nil, err
	}
	layout := "2006-01-02 15:04:05"
	if len(args) == 2 {
		if layout, err = wantString("date.format", args[1], 1); err != nil {
			return nil, err
		}
	}
	return machine.String(t.Format(layout)), nil
}

func datePart(name string, part func(time.Time) int) nativeFn {
	return func(_ *machine.Machine, args []machine.Value) (machine.Value, error) {
		if err := wantArgs(name, args, 1, 1); err != nil {
			return nil, err
		}
		t, err := tsArg(name, args)
		if err != nil {
			return nil, err
		}
		return machine.Number(part(t)), nil
	}
}
