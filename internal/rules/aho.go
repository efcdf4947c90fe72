package rules

import "sort"

// Entry is one pattern handed to Compile together with the value reported on
// every occurrence.
type Entry[T any] struct {
	Pattern []byte
	Value   T
}

// Matcher is a read-only Aho-Corasick automaton. It is safe for concurrent
// use once compiled.
type Matcher[T any] struct {
	nodes  []ahoNode
	values []T
	fold   bool
}

type ahoNode struct {
	next map[byte]int
	fail int
	out  []int
}

// Compile builds a matcher over entries. Empty patterns are skipped and an
// empty entry list yields a matcher that never reports anything. With fold
// set, ASCII letters match regardless of case.
func Compile[T any](entries []Entry[T], fold bool) *Matcher[T] {
	m := &Matcher[T]{
		nodes: []ahoNode{{next: map[byte]int{}}},
		fold:  fold,
	}

	for _, entry := range entries {
		if len(entry.Pattern) == 0 {
			continue
		}
		idx := len(m.values)
		m.values = append(m.values, entry.Value)

		current := 0
		for _, b := range entry.Pattern {
			if fold {
				b = lowerASCII(b)
			}
			next, ok := m.nodes[current].next[b]
			if !ok {
				m.nodes = append(m.nodes, ahoNode{next: map[byte]int{}})
				next = len(m.nodes) - 1
				m.nodes[current].next[b] = next
			}
			current = next
		}
		m.nodes[current].out = append(m.nodes[current].out, idx)
	}

	queue := make([]int, 0, len(m.nodes))
	for _, next := range m.nodes[0].next {
		m.nodes[next].fail = 0
		queue = append(queue, next)
	}

	for len(queue) > 0 {
		state := queue[0]
		queue = queue[1:]

		for b, next := range m.nodes[state].next {
			fail := m.nodes[state].fail
			for fail != 0 {
				if _, ok := m.nodes[fail].next[b]; ok {
					break
				}
				fail = m.nodes[fail].fail
			}
			if target, ok := m.nodes[fail].next[b]; ok && target != next {
				m.nodes[next].fail = target
			} else {
				m.nodes[next].fail = 0
			}
			m.nodes[next].out = append(m.nodes[next].out, m.nodes[m.nodes[next].fail].out...)
			queue = append(queue, next)
		}
	}

	// Same-position reports follow insertion order.
	for i := range m.nodes {
		if len(m.nodes[i].out) > 1 {
			sort.Ints(m.nodes[i].out)
		}
	}

	return m
}

// Scan reports every occurrence of every pattern in input, ordered by the
// offset one past the last matched byte. visit returns false to stop.
func (m *Matcher[T]) Scan(input []byte, visit func(value T, end int) bool) {
	if m == nil || len(m.values) == 0 {
		return
	}

	state := 0
	for i := 0; i < len(input); i++ {
		b := input[i]
		if m.fold {
			b = lowerASCII(b)
		}
		for {
			if next, ok := m.nodes[state].next[b]; ok {
				state = next
				break
			}
			if state == 0 {
				break
			}
			state = m.nodes[state].fail
		}

		for _, idx := range m.nodes[state].out {
			if !visit(m.values[idx], i+1) {
				return
			}
		}
	}
}

// Len reports the number of non-empty patterns compiled in.
func (m *Matcher[T]) Len() int {
	if m == nil {
		return 0
	}
	return len(m.values)
}

func lowerASCII(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}
