package machine

// An Iterator produces a sequence of values for a for-in loop. Iterators are
// rented from a per-kind pool when the loop begins and returned when it
// exits, breaks, or unwinds past the iterator's slot.
type Iterator interface {
	Value
	HasNext() bool
	Next() Value
	NextKV() (Value, Value)
}

// maxPoolSize bounds each per-kind free list.
const maxPoolSize = 32

// iterPools holds the bounded free lists, one per iterator kind.
type iterPools struct {
	arrays  []*ArrayIterator
	objects []*ObjectIterator
	strings []*StringIterator
	ranges  []*RangeIterator
}

// An ArrayIterator yields the elements of an array; NextKV yields index and
// element.
type ArrayIterator struct {
	arr *Array
	pos int
}

func (it *ArrayIterator) String() string { return "iterator" }
func (it *ArrayIterator) Type() string   { return "iterator" }
func (it *ArrayIterator) HasNext() bool  { return it.pos < len(it.arr.Elems) }
func (it *ArrayIterator) Next() Value {
	v := it.arr.Elems[it.pos]
	it.pos++
	return v
}
func (it *ArrayIterator) NextKV() (Value, Value) {
	k := Number(it.pos)
	return k, it.Next()
}

// An ObjectIterator yields the values of an object; NextKV yields key and
// value. The key list is captured at reset time so that mutation during
// iteration keeps reads of the current keys valid.
type ObjectIterator struct {
	obj  *Object
	keys []string
	pos  int
}

func (it *ObjectIterator) String() string { return "iterator" }
func (it *ObjectIterator) Type() string   { return "iterator" }
func (it *ObjectIterator) HasNext() bool  { return it.pos < len(it.keys) }
func (it *ObjectIterator) Next() Value {
	_, v := it.NextKV()
	return v
}
func (it *ObjectIterator) NextKV() (Value, Value) {
	key := it.keys[it.pos]
	it.pos++
	v, ok := it.obj.Get(key)
	if !ok {
		return String(key), Null
	}
	return String(key), v
}

// A StringIterator yields the characters of a string as one-character
// strings; NextKV yields index and character.
type StringIterator struct {
	str string
	pos int
}

func (it *StringIterator) String() string { return "iterator" }
func (it *StringIterator) Type() string   { return "iterator" }
func (it *StringIterator) HasNext() bool  { return it.pos < len(it.str) }
func (it *StringIterator) Next() Value {
	c := it.str[it.pos : it.pos+1]
	it.pos++
	return String(c)
}
func (it *StringIterator) NextKV() (Value, Value) {
	k := Number(it.pos)
	return k, it.Next()
}

// A RangeIterator yields the numbers of a range; NextKV yields iteration
// index and number.
type RangeIterator struct {
	cur, stop, step float64
	idx             int
}

func (it *RangeIterator) String() string { return "iterator" }
func (it *RangeIterator) Type() string   { return "iterator" }
func (it *RangeIterator) HasNext() bool {
	if it.step > 0 {
		return it.cur < it.stop
	}
	if it.step < 0 {
		return it.cur > it.stop
	}
	return false
}
func (it *RangeIterator) Next() Value {
	v := Number(it.cur)
	it.cur += it.step
	it.idx++
	return v
}
func (it *RangeIterator) NextKV() (Value, Value) {
	k := Number(it.idx)
	return k, it.Next()
}

// rent maps an iterable value to a reset iterator from the pools;
// it returns nil when the value is not iterable.
func (p *iterPools) rent(v Value) Iterator {
	switch v := v.(type) {
	case *Array:
		var it *ArrayIterator
		if n := len(p.arrays); n > 0 {
			it = p.arrays[n-1]
			p.arrays = p.arrays[:n-1]
		} else {
			it = &ArrayIterator{}
		}
		it.arr, it.pos = v, 0
		return it
	case *Object:
		var it *ObjectIterator
		if n := len(p.objects); n > 0 {
			it = p.objects[n-1]
			p.objects = p.objects[:n-1]
		} else {
			it = &ObjectIterator{}
		}
		it.obj, it.keys, it.pos = v, v.Keys(), 0
		return it
	case String:
		var it *StringIterator
		if n := len(p.strings); n > 0 {
			it = p.strings[n-1]
			p.strings = p.strings[:n-1]
		} else {
			it = &StringIterator{}
		}
		it.str, it.pos = string(v), 0
		return it
	case *Range:
		var it *RangeIterator
		if n := len(p.ranges); n > 0 {
			it = p.ranges[n-1]
			p.ranges = p.ranges[:n-1]
		} else {
			it = &RangeIterator{}
		}
		it.cur, it.stop, it.step, it.idx = v.Start, v.Stop, v.Step, 0
		return it
	}
	return nil
}

// giveBack returns an iterator to its pool, discarding it when the pool is
// at capacity. The iterator's references are cleared so pooled iterators do
// not pin heap values.
func (p *iterPools) giveBack(it Iterator) {
	switch it := it.(type) {
	case *ArrayIterator:
		it.arr = nil
		if len(p.arrays) < maxPoolSize {
			p.arrays = append(p.arrays, it)
		}
	case *ObjectIterator:
		it.obj, it.keys = nil, nil
		if len(p.objects) < maxPoolSize {
			p.objects = append(p.objects, it)
		}
	case *StringIterator:
		it.str = ""
		if len(p.strings) < maxPoolSize {
			p.strings = append(p.strings, it)
		}
	case *RangeIterator:
		if len(p.ranges) < maxPoolSize {
			p.ranges = append(p.ranges, it)
		}
	}
}
