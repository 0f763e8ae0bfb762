package tenant

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxCodeLength        = 64
	MaxNameLength        = 64
	MaxDescriptionLength = 256
	MaxPageSize          = 100
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Fields are the caller-supplied, mutable attributes of a tenant.
type Fields struct {
	Code        string
	Name        string
	QueueID     int64
	Description string
}

// ValidateCode reports whether code is a well-formed tenant code. Codes are
// case-sensitive and are not trimmed.
func ValidateCode(code string) error {
	if code == "" || len(code) > MaxCodeLength || !codePattern.MatchString(code) {
		return InvalidParameter("tenantCode")
	}
	return nil
}

func (f Fields) validate() error {
	if err := ValidateCode(f.Code); err != nil {
		return err
	}
	if strings.TrimSpace(f.Name) == "" || utf8.RuneCountInString(f.Name) > MaxNameLength {
		return InvalidParameter("tenantName")
	}
	if f.QueueID <= 0 {
		return InvalidParameter("queueId")
	}
	if utf8.RuneCountInString(f.Description) > MaxDescriptionLength {
		return InvalidParameter("desc")
	}
	return nil
}

// CheckPageParams validates paging input shared by all paged listings.
func CheckPageParams(pageNo, pageSize int) error {
	if pageNo < 1 {
		return InvalidParameter("pageNo")
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return InvalidParameter("pageSize")
	}
	return nil
}
