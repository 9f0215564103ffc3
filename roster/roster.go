// Package roster parses and validates guest lists uploaded as CSV.
package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"qrcheckin-backend/models"
)

const (
	// MaxImportRows bounds a single upload.
	MaxImportRows = 1000
	maxNameLength = 100
)

var (
	ErrEmpty             = errors.New("no guests found in file")
	ErrTooManyRows       = fmt.Errorf("at most %d guests per import", MaxImportRows)
	ErrMissingNameColumn = errors.New("csv header must contain a name column")
)

var phonePattern = regexp.MustCompile(`^[\d\s\-+()]{8,20}$`)

// columns maps accepted header spellings to a field.
var columns = map[string]string{
	"name":            "name",
	"nom":             "name",
	"email":           "email",
	"mail":            "email",
	"phone":           "phone",
	"telephone":       "phone",
	"tel":             "phone",
	"type":            "type",
	"invitationtype":  "type",
	"invitation_type": "type",
}

var validate = validator.New()

// Draft is a validated row ready to become a guest.
type Draft struct {
	Line           int
	Name           string
	Email          string
	Phone          string
	InvitationType models.InvitationType
}

func (d Draft) Guest(eventID uuid.UUID) *models.Guest {
	g := &models.Guest{EventID: eventID, Name: d.Name, InvitationType: d.InvitationType}
	if d.Email != "" {
		email := d.Email
		g.Email = &email
	}
	if d.Phone != "" {
		phone := d.Phone
		g.Phone = &phone
	}
	return g
}

type LineError struct {
	Line   int      `json:"line"`
	Name   string   `json:"name"`
	Errors []string `json:"errors"`
}

// Normalize trims and validates one guest's fields. Email is lowercased and an
// empty type means Standard.
func Normalize(name, email, phone, invitationType string) (Draft, []string) {
	var problems []string
	d := Draft{
		Name:  truncate(strings.TrimSpace(name), maxNameLength),
		Email: strings.ToLower(strings.TrimSpace(email)),
		Phone: strings.TrimSpace(phone),
	}
	if d.Name == "" {
		problems = append(problems, "name is required")
	}
	if d.Email != "" && validate.Var(d.Email, "email") != nil {
		problems = append(problems, "invalid email")
	}
	if d.Phone != "" && !phonePattern.MatchString(d.Phone) {
		problems = append(problems, "invalid phone number")
	}
	typ, ok := models.ParseInvitationType(invitationType)
	if !ok {
		problems = append(problems, "invitation type must be VIP, Standard or Staff")
	}
	d.InvitationType = typ
	return d, problems
}

// Parse reads a CSV whose first record is a header. Rows without a name are
// skipped. Line errors are collected for every invalid row, including emails
// repeated within the file; the returned error is reserved for unreadable
// input and limits.
func Parse(r io.Reader) ([]Draft, []LineError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, ErrEmpty
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	index := make(map[string]int)
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if field, ok := columns[h]; ok {
			if _, seen := index[field]; !seen {
				index[field] = i
			}
		}
	}
	if _, ok := index["name"]; !ok {
		return nil, nil, ErrMissingNameColumn
	}

	var (
		drafts []Draft
		errs   []LineError
		emails = make(map[string]int)
	)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := cr.FieldPos(0)
		get := func(field string) string {
			i, ok := index[field]
			if !ok || i >= len(record) {
				return ""
			}
			return record[i]
		}
		if strings.TrimSpace(get("name")) == "" {
			continue
		}
		if len(drafts)+len(errs) >= MaxImportRows {
			return nil, nil, ErrTooManyRows
		}

		d, problems := Normalize(get("name"), get("email"), get("phone"), get("type"))
		d.Line = line
		if d.Email != "" {
			if first, dup := emails[d.Email]; dup {
				problems = append(problems, fmt.Sprintf("email already used on line %d", first))
			} else {
				emails[d.Email] = line
			}
		}
		if len(problems) > 0 {
			errs = append(errs, LineError{Line: line, Name: d.Name, Errors: problems})
			continue
		}
		drafts = append(drafts, d)
	}
	if len(drafts) == 0 && len(errs) == 0 {
		return nil, nil, ErrEmpty
	}
	return drafts, errs, nil
}

// Emails lists the non-empty emails of drafts.
func Emails(drafts []Draft) []string {
	var out []string
	for _, d := range drafts {
		if d.Email != "" {
			out = append(out, d.Email)
		}
	}
	return out
}

// RegisterValidations adds the "phone" tag to v, typically gin's binding validator.
func RegisterValidations(v *validator.Validate) error {
	return v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(strings.TrimSpace(fl.Field().String()))
	})
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
