package analyzer

import (
	"strings"
)

type HashedItem struct {
	ID   string
	Name string
	Hash string
}

type HashGroup struct {
	Hash    string
	Members []HashedItem
}

type DuplicateGrouper interface {
	// Group clusters items whose content hashes are identical. Only clusters
	// with two or more members are returned, in order of first appearance.
	Group(items []HashedItem) []HashGroup
}

type hashGrouper struct{}

func NewDuplicateGrouper() DuplicateGrouper {
	return &hashGrouper{}
}

func (g *hashGrouper) Group(items []HashedItem) []HashGroup {
	index := make(map[string]int)
	var groups []HashGroup

	for _, item := range items {
		h := normalizeHash(item.Hash)
		if h == "" {
			continue
		}

		if i, ok := index[h]; ok {
			groups[i].Members = append(groups[i].Members, item)
			continue
		}

		index[h] = len(groups)
		groups = append(groups, HashGroup{Hash: h, Members: []HashedItem{item}})
	}

	out := groups[:0]
	for _, grp := range groups {
		if len(grp.Members) > 1 {
			out = append(out, grp)
		}
	}
	return out
}

func normalizeHash(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}
