// Package shuffle provides the shuffle permutation applied on top of the
// natural queue order.
package shuffle

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
)

// Delimiter separates indices in the persisted form.
const Delimiter = ";"

// Order is an immutable permutation of [0, Len()).
// The zero value is an empty order.
//
// Thread-safety: Order values are safe to share; mutating operations return copies.
type Order struct {
	shuffled []int
	// indexInShuffled[i] is the position of natural index i in shuffled
	indexInShuffled []int
}

// New returns a random permutation of length n.
func New(n int, rnd *rand.Rand) Order {
	shuffled := make([]int, n)
	for i := range shuffled {
		j := rnd.IntN(i + 1)
		shuffled[i] = shuffled[j]
		shuffled[j] = i
	}
	return build(shuffled)
}

// Identity returns the natural order of length n.
func Identity(n int) Order {
	shuffled := make([]int, n)
	for i := range shuffled {
		shuffled[i] = i
	}
	return build(shuffled)
}

// FromIndices validates indices and wraps them as an Order.
func FromIndices(indices []int) (Order, error) {
	if !isPermutation(indices) {
		return Order{}, fmt.Errorf("indices %v are not a permutation of [0, %d)", indices, len(indices))
	}
	return build(append([]int(nil), indices...)), nil
}

// Parse decodes a persisted order. An empty string yields an empty slice.
// It does not check that the result is a permutation.
func Parse(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, Delimiter)
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("parse shuffle index %q: %w", p, err)
		}
		out[i] = n
	}
	return out, nil
}

// Outcome describes how Restore produced its order.
type Outcome int

const (
	// Restored means the persisted permutation was used as is.
	Restored Outcome = iota
	// Fallback means nothing usable was persisted and identity was used.
	Fallback
	// Regenerated means the persisted permutation did not fit n.
	Regenerated
)

// Restore rebuilds the order for a queue of n items from its persisted form.
// Empty or unparseable input falls back to identity. A valid permutation of the
// wrong length, or any non-permutation, is replaced by a fresh random order.
func Restore(persisted string, n int, rnd *rand.Rand) (Order, Outcome, error) {
	indices, err := Parse(persisted)
	if err != nil {
		return Identity(n), Fallback, err
	}
	if len(indices) == 0 {
		return Identity(n), Fallback, nil
	}
	if len(indices) != n || !isPermutation(indices) {
		return New(n, rnd), Regenerated, nil
	}
	return build(indices), Restored, nil
}

// Len returns the number of indices.
func (o Order) Len() int {
	return len(o.shuffled)
}

// Indices returns a copy of the permutation.
func (o Order) Indices() []int {
	return append([]int(nil), o.shuffled...)
}

// String encodes the order as ";"-joined integers.
func (o Order) String() string {
	parts := make([]string, len(o.shuffled))
	for i, v := range o.shuffled {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, Delimiter)
}

// Valid reports whether the order is a permutation of [0, n).
func (o Order) Valid(n int) bool {
	return len(o.shuffled) == n && isPermutation(o.shuffled)
}

// Reconcile keeps the order when it still fits n items and regenerates it otherwise.
func (o Order) Reconcile(n int, rnd *rand.Rand) (Order, bool) {
	if o.Len() == n {
		return o, false
	}
	return New(n, rnd), true
}

// First returns the first natural index in shuffled order, or -1 when empty.
func (o Order) First() int {
	if len(o.shuffled) == 0 {
		return -1
	}
	return o.shuffled[0]
}

// Last returns the last natural index in shuffled order, or -1 when empty.
func (o Order) Last() int {
	if len(o.shuffled) == 0 {
		return -1
	}
	return o.shuffled[len(o.shuffled)-1]
}

// Next returns the natural index played after index, or -1 at the end.
func (o Order) Next(index int) int {
	if index < 0 || index >= len(o.indexInShuffled) {
		return -1
	}
	pos := o.indexInShuffled[index] + 1
	if pos >= len(o.shuffled) {
		return -1
	}
	return o.shuffled[pos]
}

// Previous returns the natural index played before index, or -1 at the start.
func (o Order) Previous(index int) int {
	if index < 0 || index >= len(o.indexInShuffled) {
		return -1
	}
	pos := o.indexInShuffled[index] - 1
	if pos < 0 {
		return -1
	}
	return o.shuffled[pos]
}

// Position returns where natural index sits in the shuffled traversal, or -1.
func (o Order) Position(index int) int {
	if index < 0 || index >= len(o.indexInShuffled) {
		return -1
	}
	return o.indexInShuffled[index]
}

// At returns the natural index at shuffled position pos.
func (o Order) At(pos int) int {
	return o.shuffled[pos]
}

// CloneAndInsert returns an order with count new natural indices inserted at
// insertionIndex. Existing indices >= insertionIndex shift up by count and the
// new ones land at random positions.
func (o Order) CloneAndInsert(insertionIndex, count int, rnd *rand.Rand) Order {
	n := len(o.shuffled)
	positions := make([]int, count)
	for i := range positions {
		positions[i] = rnd.IntN(n + 1)
	}
	slices.Sort(positions)

	out := make([]int, 0, n+count)
	p := 0
	for i := 0; i <= n; i++ {
		for p < count && positions[p] == i {
			out = append(out, insertionIndex+p)
			p++
		}
		if i < n {
			v := o.shuffled[i]
			if v >= insertionIndex {
				v += count
			}
			out = append(out, v)
		}
	}
	return build(out)
}

// CloneAndRemove returns an order with natural indices in [from, to) removed and
// the indices above to shifted down.
func (o Order) CloneAndRemove(from, to int) Order {
	removed := to - from
	out := make([]int, 0, len(o.shuffled))
	for _, v := range o.shuffled {
		switch {
		case v >= from && v < to:
			continue
		case v >= to:
			out = append(out, v-removed)
		default:
			out = append(out, v)
		}
	}
	return build(out)
}

func build(shuffled []int) Order {
	index := make([]int, len(shuffled))
	for pos, v := range shuffled {
		index[v] = pos
	}
	return Order{shuffled: shuffled, indexInShuffled: index}
}

func isPermutation(indices []int) bool {
	seen := make([]bool, len(indices))
	for _, v := range indices {
		if v < 0 || v >= len(indices) || seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}
