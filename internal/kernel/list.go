package kernel

// Elem is a list link embedded in the structure it links. The list never
// owns the value; an element belongs to at most one list at a time.
type Elem[T any] struct {
	prev, next *Elem[T]
	Value      T
}

// List is a doubly linked list with sentinel head and tail elements.
// The zero value is an empty list.
type List[T any] struct {
	head, tail Elem[T]
}

func (l *List[T]) lazyInit() {
	if l.head.next == nil {
		l.head.next = &l.tail
		l.tail.prev = &l.head
	}
}

func insertBefore[T any](before, e *Elem[T]) {
	e.prev = before.prev
	e.next = before
	before.prev.next = e
	before.prev = e
}

// Push inserts e at the head.
func (l *List[T]) Push(e *Elem[T]) {
	l.lazyInit()
	insertBefore(l.head.next, e)
}

// Append inserts e at the tail.
func (l *List[T]) Append(e *Elem[T]) {
	l.lazyInit()
	insertBefore(&l.tail, e)
}

// Remove unlinks e. e must be in l.
func (l *List[T]) Remove(e *Elem[T]) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev, e.next = nil, nil
}

// Pop removes and returns the head element, or nil if l is empty.
func (l *List[T]) Pop() *Elem[T] {
	if l.Empty() {
		return nil
	}
	e := l.head.next
	l.Remove(e)
	return e
}

// Front returns the head element without removing it.
func (l *List[T]) Front() *Elem[T] {
	if l.Empty() {
		return nil
	}
	return l.head.next
}

// Find reports whether e is linked into l.
func (l *List[T]) Find(e *Elem[T]) bool {
	return l.Walk(func(x *Elem[T]) bool { return x == e }) != nil
}

// Walk calls fn on each element from head to tail and returns the first
// element for which fn returns true.
func (l *List[T]) Walk(fn func(*Elem[T]) bool) *Elem[T] {
	l.lazyInit()
	for e := l.head.next; e != &l.tail; e = e.next {
		if fn(e) {
			return e
		}
	}
	return nil
}

// Len returns the number of elements.
func (l *List[T]) Len() int {
	n := 0
	l.Walk(func(*Elem[T]) bool { n++; return false })
	return n
}

// Empty reports whether l has no elements.
func (l *List[T]) Empty() bool {
	l.lazyInit()
	return l.head.next == &l.tail
}
