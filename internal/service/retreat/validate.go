package retreat

import (
	"fmt"
	"strings"

	"github.com/jmehdipour/retreat-sync/internal/model"
	"github.com/jmehdipour/retreat-sync/internal/util"
)

func invalid(id int64, format string, args ...any) model.Problem {
	return model.Problem{Code: model.CodeInvalid, Message: fmt.Sprintf(format, args...), ItemID: id}
}

func duplicate(id int64, what, name string) model.Problem {
	return model.Problem{Code: model.CodeDuplicate, Message: fmt.Sprintf("%s %q appears more than once", what, name), ItemID: id}
}

func validateFamilies(items []model.Family) (errs, warns []model.Problem) {
	seen := map[string]bool{}
	for _, f := range items {
		name := strings.ToLower(strings.TrimSpace(f.Name))
		if name == "" {
			errs = append(errs, invalid(f.ID, "family name is required"))
			continue
		}
		if seen[name] {
			warns = append(warns, duplicate(f.ID, "family", f.Name))
		}
		seen[name] = true
		for i, m := range f.Members {
			if strings.TrimSpace(m.Name) == "" {
				errs = append(errs, invalid(f.ID, "member %d of %q has no name", i+1, f.Name))
			}
			if m.Email != "" && util.NormalizeEmail(m.Email) == "" {
				errs = append(errs, invalid(f.ID, "member %q has an invalid email", m.Name))
			}
		}
		if len(f.Members) == 0 {
			warns = append(warns, model.Problem{Code: model.CodeEmpty, Message: fmt.Sprintf("family %q has no members", f.Name), ItemID: f.ID})
		}
	}
	return errs, warns
}

func validateSpaces(items []model.ServiceSpace) (errs, warns []model.Problem) {
	seen := map[string]bool{}
	for _, s := range items {
		name := strings.ToLower(strings.TrimSpace(s.Name))
		if name == "" {
			errs = append(errs, invalid(s.ID, "service space name is required"))
			continue
		}
		if seen[name] {
			errs = append(errs, duplicate(s.ID, "service space", s.Name))
		}
		seen[name] = true
		if s.MinCapacity < 0 || s.MaxCapacity < s.MinCapacity {
			errs = append(errs, invalid(s.ID, "%q has invalid capacity %d..%d", s.Name, s.MinCapacity, s.MaxCapacity))
		}
	}
	return errs, warns
}

func validateTents(items []model.Tent) (errs, warns []model.Problem) {
	seen := map[string]bool{}
	for _, t := range items {
		label := strings.ToLower(strings.TrimSpace(t.Label))
		if label == "" {
			errs = append(errs, invalid(t.ID, "tent label is required"))
			continue
		}
		if seen[label] {
			errs = append(errs, duplicate(t.ID, "tent", t.Label))
		}
		seen[label] = true
		if t.Capacity <= 0 {
			errs = append(errs, invalid(t.ID, "tent %q needs a positive capacity", t.Label))
		}
	}
	return errs, warns
}

func validateRoster(items []model.RosterEntry) (errs, warns []model.Problem) {
	emails := map[string]bool{}
	for _, e := range items {
		if strings.TrimSpace(e.FullName) == "" {
			errs = append(errs, invalid(e.ID, "full name is required"))
		}
		if !e.Role.Valid() {
			errs = append(errs, invalid(e.ID, "unknown role %q", e.Role))
		}
		if e.Email == "" {
			if e.Phone == "" {
				warns = append(warns, model.Problem{Code: model.CodeNoContact, Message: fmt.Sprintf("%q has no email or phone", e.FullName), ItemID: e.ID})
			}
			continue
		}
		if util.NormalizeEmail(e.Email) == "" {
			errs = append(errs, invalid(e.ID, "invalid email %q", e.Email))
			continue
		}
		key := strings.ToLower(e.Email)
		if emails[key] {
			errs = append(errs, duplicate(e.ID, "email", e.Email))
		}
		emails[key] = true
	}
	return errs, warns
}
