package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	displayNamePattern = regexp.MustCompile(`^(\d)(\d{2})(\d{2})\s*(.+)$`)
	studentIDPattern   = regexp.MustCompile(`^(\d)(\d{2})(\d{2})$`)
)

// ParseDisplayName extracts the student identity from names like "20315 Kim".
func ParseDisplayName(displayName string) (Student, error) {
	m := displayNamePattern.FindStringSubmatch(strings.TrimSpace(displayName))
	if m == nil {
		return Student{}, ErrInvalidStudent
	}
	name := strings.TrimSpace(m[4])
	if name == "" {
		return Student{}, ErrInvalidStudent
	}
	return Student{
		Grade:  atoi(m[1]),
		Class:  atoi(m[2]),
		Number: atoi(m[3]),
		Name:   name,
	}, nil
}

// ParseStudentID splits a five digit id (grade, class, number) without a name.
func ParseStudentID(id string) (Student, error) {
	m := studentIDPattern.FindStringSubmatch(strings.TrimSpace(id))
	if m == nil {
		return Student{}, ErrInvalidStudentID
	}
	return Student{Grade: atoi(m[1]), Class: atoi(m[2]), Number: atoi(m[3])}, nil
}

// ID formats the student back into its five digit form.
func (s Student) ID() string {
	return fmt.Sprintf("%d%02d%02d", s.Grade, s.Class, s.Number)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
