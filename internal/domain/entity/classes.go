package entity

import "strings"

// ClassList is the ordered class-name list. Position i is class_id i inside
// label files, so order is significant and entries are never deduplicated
// silently.
type ClassList []string

// NewClassList trims every entry and rejects empty input, blank names and
// duplicates. Comparison is case-sensitive.
func NewClassList(names []string) (ClassList, error) {
	if len(names) == 0 {
		return nil, &EmptyClassListError{}
	}
	out := make(ClassList, 0, len(names))
	seen := make(map[string]int, len(names))
	for i, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			return nil, &BlankClassNameError{Position: i}
		}
		if first, ok := seen[name]; ok {
			return nil, &DuplicateClassError{Name: name, First: first, Again: i}
		}
		seen[name] = i
		out = append(out, name)
	}
	return out, nil
}

func (c ClassList) Len() int { return len(c) }

// IndexOf returns the class_id for name, or -1.
func (c ClassList) IndexOf(name string) int {
	for i, n := range c {
		if n == name {
			return i
		}
	}
	return -1
}

// Text renders the names artifact: one name per line.
func (c ClassList) Text() string {
	return strings.Join(c, "\n")
}
