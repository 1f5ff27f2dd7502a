package main

import (
	"fmt"
	"math/rand"

	"github.com/btree-query-bench/strindex/dbms/index"
)

type WorkloadType string

const (
	Lookup WorkloadType = "Lookup (hit)"
	Miss   WorkloadType = "Lookup (miss)"
	OLTP   WorkloadType = "OLTP (90/10)"
)

// Keys hands out distinct keys in random order.
type Keys struct {
	rnd  *rand.Rand
	perm []int
	next int
}

func NewKeys(seed int64, n int) *Keys {
	rnd := rand.New(rand.NewSource(seed))
	return &Keys{rnd: rnd, perm: rnd.Perm(n)}
}

func keyOf(i int) string { return fmt.Sprintf("user-%010d", i) }

// Fresh returns a key that has not been handed out yet.
func (k *Keys) Fresh() string {
	var i int
	if k.next < len(k.perm) {
		i = k.perm[k.next]
	} else {
		i = k.next
	}
	k.next++
	return keyOf(i)
}

// Loaded returns a random key among those handed out so far.
func (k *Keys) Loaded() string {
	if k.next == 0 {
		return k.Absent()
	}
	i := k.rnd.Intn(k.next)
	if i < len(k.perm) {
		return keyOf(k.perm[i])
	}
	return keyOf(i)
}

// Absent returns a key that is never handed out.
func (k *Keys) Absent() string {
	return fmt.Sprintf("miss-%010d", k.rnd.Intn(1<<30))
}

// ExecuteWorkload runs ops operations of the given mix and returns the
// number of failed operations.
func ExecuteWorkload(idx index.Index, keys *Keys, wType WorkloadType, ops int) (int, error) {
	misses := 0
	for i := 0; i < ops; i++ {
		switch wType {
		case Lookup:
			if _, ok, err := idx.Search(keys.Loaded()); err != nil {
				return misses, err
			} else if !ok {
				misses++
			}
		case Miss:
			if _, ok, err := idx.Search(keys.Absent()); err != nil {
				return misses, err
			} else if ok {
				misses++
			}
		case OLTP:
			if keys.rnd.Intn(100) < 90 {
				if _, _, err := idx.Search(keys.Loaded()); err != nil {
					return misses, err
				}
			} else if err := idx.Insert(keys.Fresh(), int64(i)); err != nil {
				return misses, err
			}
		}
	}
	return misses, nil
}
