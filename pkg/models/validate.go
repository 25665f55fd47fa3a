package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError lists every field that broke the expected payload shape.
type ValidationError struct {
	Subject string
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Subject, strings.Join(e.Reasons, "; "))
}

func (p *ProfileData) Validate() error {
	return check("profile", p)
}

func (p *PostData) Validate() error {
	return check("post "+p.TikTokID, p)
}

func (p *PostsPage) Validate() error {
	var reasons []string
	seen := make(map[string]int, len(p.Posts))
	for i := range p.Posts {
		if err := check("post", &p.Posts[i]); err != nil {
			var verr *ValidationError
			if errors.As(err, &verr) {
				for _, r := range verr.Reasons {
					reasons = append(reasons, fmt.Sprintf("posts[%d].%s", i, r))
				}
				continue
			}
			return err
		}
		if prev, dup := seen[p.Posts[i].TikTokID]; dup {
			reasons = append(reasons, fmt.Sprintf("posts[%d].tiktok_id: duplicates posts[%d]", i, prev))
			continue
		}
		seen[p.Posts[i].TikTokID] = i
	}
	if len(reasons) > 0 {
		return &ValidationError{Subject: "posts page", Reasons: reasons}
	}
	return nil
}

func check(subject string, v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validate %s: %w", subject, err)
	}

	reasons := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		reasons = append(reasons, fmt.Sprintf("%s: failed %s", fieldPath(fe), describeTag(fe)))
	}
	return &ValidationError{Subject: subject, Reasons: reasons}
}

// fieldPath drops the leading struct name from the namespace, e.g. PostData.Images[0].URL -> Images[0].URL.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fmt.Sprintf("%s=%s", fe.Tag(), fe.Param())
	}
	return fe.Tag()
}
