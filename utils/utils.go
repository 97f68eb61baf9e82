package utils

import "sort"

type JSON = map[string]any

// UniqueStrings returns the distinct values of list in ascending order.
func UniqueStrings(list []string) []string {
	if len(list) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(list))
	r := make([]string, 0, len(list))
	for _, v := range list {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		r = append(r, v)
	}
	sort.Strings(r)
	return r
}
