package config

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"datalake/internal/storage"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to the user but does not block the run.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is one validation finding. Path is the dotted koanf path of the
// offending key, e.g. "output.compression".
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Errors returns the error-severity issues joined into one error, or nil.
func Errors(issues []Issue) error {
	var errs []error
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			errs = append(errs, iss)
		}
	}
	return errors.Join(errs...)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report koanf paths rather than Go field names.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("koanf"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks cfg without mutating it. Struct-tag rules come first, then
// semantic checks the tags cannot express.
func Validate(cfg *Config) []Issue {
	issues := validateTags(cfg)

	if cfg.Transform.TimeZone != "" {
		if _, err := time.LoadLocation(cfg.Transform.TimeZone); err != nil {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "transform.time_zone",
				Message:  fmt.Sprintf("unknown time zone %q", cfg.Transform.TimeZone),
			})
		}
	}

	for path, loc := range map[string]string{
		"input.song_data": cfg.Input.SongData,
		"input.log_data":  cfg.Input.LogData,
		"output.path":     cfg.Output.Path,
	} {
		if loc == "" {
			continue
		}
		if s := storage.Scheme(loc); s != "file" && s != "s3" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  fmt.Sprintf("unsupported storage scheme %q (want a path, file:// or s3://)", s),
			})
		}
	}
	if storage.Scheme(cfg.Output.Path) == "s3" {
		if _, prefix, err := storage.SplitBucket(cfg.Output.Path); err == nil && prefix == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "output.path",
				Message:  "output is a bucket root; table overwrites will delete top-level table prefixes of the bucket",
			})
		}
	}

	if u := cfg.Metrics.PushgatewayURL; u != "" {
		if pu, err := url.Parse(u); err != nil || pu.Scheme == "" || pu.Host == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  fmt.Sprintf("invalid URL %q", u),
			})
		}
	}

	if cfg.Join.Matcher == "folded" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "join.matcher",
			Message:  "folded matching joins titles that differ in case, accents or spacing; songplays may contain false matches",
		})
	}
	if cfg.Warehouse.Kind == "sqlite" && strings.Contains(cfg.Warehouse.DSN, ":memory:") {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "warehouse.dsn",
			Message:  "in-memory sqlite mirror is discarded when the run exits",
		})
	}
	return issues
}

func validateTags(cfg *Config) []Issue {
	err := getValidator().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Issue{{Severity: SeverityError, Path: "", Message: err.Error()}}
	}
	issues := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "Config.output.compression"; drop the root type.
		_, path, _ := strings.Cut(fe.Namespace(), ".")
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path,
			Message:  translate(fe),
		})
	}
	return issues
}

func translate(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "must not be empty"
	case "required_with":
		return fmt.Sprintf("is required when %s is set", strings.ToLower(fe.Param()))
	case "required_if":
		f, v, _ := strings.Cut(fe.Param(), " ")
		return fmt.Sprintf("is required when %s is %s", strings.ToLower(f), v)
	case "oneof":
		return fmt.Sprintf("must be one of: %s (got %q)", fe.Param(), fmt.Sprint(fe.Value()))
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "url":
		return "must be a valid URL"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
