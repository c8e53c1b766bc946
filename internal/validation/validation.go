// Package validation holds explicit, per-request input checks that return
// field-level errors.
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	appErrors "github.com/noah-isme/student-tracker-api/pkg/errors"
)

const (
	MinGradeLevel  = 7
	MaxGradeLevel  = 12
	MinTeacherAge  = 18
	DateLayout     = "2006-01-02"
	maxFutureYears = 2
)

var academicYearPattern = regexp.MustCompile(`^\d{4}-\d{4}$`)

// Collector accumulates field errors for a single payload.
type Collector struct {
	validate *validator.Validate
	errs     []appErrors.FieldError
}

// NewCollector builds a collector backed by validate.
func NewCollector(validate *validator.Validate) *Collector {
	if validate == nil {
		validate = validator.New()
	}
	return &Collector{validate: validate}
}

// Var runs a validator tag against a single value and records message on failure.
func (c *Collector) Var(field string, value interface{}, tag, message string) bool {
	if err := c.validate.Var(value, tag); err != nil {
		c.Add(field, message)
		return false
	}
	return true
}

// Check records message when ok is false.
func (c *Collector) Check(ok bool, field, message string) bool {
	if !ok {
		c.Add(field, message)
	}
	return ok
}

// Add records a field error.
func (c *Collector) Add(field, message string) {
	c.errs = append(c.errs, appErrors.FieldError{Field: field, Message: message})
}

// Errors returns the collected field errors.
func (c *Collector) Errors() []appErrors.FieldError {
	return c.errs
}

// Err returns a validation error carrying every collected field error, or nil.
func (c *Collector) Err(message string) error {
	if len(c.errs) == 0 {
		return nil
	}
	return appErrors.Validation(message, c.errs...)
}

// AcademicYear checks the YYYY-YYYY format, that the years are consecutive and
// that the first year is at most two years ahead of now.
func AcademicYear(year string, now time.Time) error {
	if !academicYearPattern.MatchString(year) {
		return fmt.Errorf("academic year must be in format YYYY-YYYY (e.g., 2024-2025)")
	}
	first, _ := strconv.Atoi(year[:4])
	second, _ := strconv.Atoi(year[5:])
	if second != first+1 {
		return fmt.Errorf("academic year must be consecutive (e.g., 2024-2025)")
	}
	if first > now.Year()+maxFutureYears {
		return fmt.Errorf("academic year cannot be more than %d years in the future", maxFutureYears)
	}
	return nil
}

// ParseDate parses a calendar date in YYYY-MM-DD form.
func ParseDate(raw string) (time.Time, error) {
	return time.Parse(DateLayout, strings.TrimSpace(raw))
}

// AgeAt returns the age in whole years on the given day.
func AgeAt(dob, now time.Time) int {
	age := now.Year() - dob.Year()
	if !sameOrAfterBirthday(dob, now) {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

func sameOrAfterBirthday(dob, now time.Time) bool {
	if now.Month() != dob.Month() {
		return now.Month() > dob.Month()
	}
	return now.Day() >= dob.Day()
}

// NotInFuture reports whether the date falls on or before today.
func NotInFuture(date, now time.Time) bool {
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, date.Location())
	return !date.After(today)
}

// GradeLevel reports whether level is within the supported range.
func GradeLevel(level int) bool {
	return level >= MinGradeLevel && level <= MaxGradeLevel
}
