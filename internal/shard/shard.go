// Package shard assigns keys to workers and orders DynamoDB Streams shards.
package shard

import (
	"hash/fnv"
)

// For returns the worker index in [0, n) for key.
// With n <= 1 every key maps to worker 0.
func For(key string, n int) int {
	if n <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(n))
}

// Info describes one shard of a stream.
type Info struct {
	ID       string
	ParentID string

	// Closed shards have an ending sequence number and receive no new records.
	Closed bool
}

// Lineage orders shards so every parent precedes its children. Shards whose
// parent is absent (expired or never listed) are treated as roots. Input order
// is kept among shards with no ordering constraint.
func Lineage(shards []Info) []Info {
	byID := make(map[string]int, len(shards))
	for i, s := range shards {
		byID[s.ID] = i
	}

	out := make([]Info, 0, len(shards))
	visited := make([]bool, len(shards))
	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		if p, ok := byID[shards[i].ParentID]; ok && shards[i].ParentID != "" {
			visit(p)
		}
		out = append(out, shards[i])
	}
	for i := range shards {
		visit(i)
	}
	return out
}

// Open returns the shards still receiving records, in lineage order.
func Open(shards []Info) []Info {
	var out []Info
	for _, s := range Lineage(shards) {
		if !s.Closed {
			out = append(out, s)
		}
	}
	return out
}

// Children returns the shards whose parent is id, in lineage order.
func Children(shards []Info, id string) []Info {
	var out []Info
	for _, s := range Lineage(shards) {
		if s.ParentID == id {
			out = append(out, s)
		}
	}
	return out
}
