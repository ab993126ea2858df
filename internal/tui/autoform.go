package tui

import (
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"grimm.is/ngxweb/internal/validation"
)

// AutoForm generates a huh.Form from a struct pointer using reflection.
// It parses the `tui:"..."` tag to configure field properties:
// title, desc, options (Label:Value;...), type=password and validate.
func AutoForm(v any) *huh.Form {
	val := reflect.ValueOf(v)
	if val.Kind() != reflect.Ptr || val.Elem().Kind() != reflect.Struct {
		panic("AutoForm requires a pointer to a struct")
	}

	el := val.Elem()
	t := el.Type()
	var fields []huh.Field

	for i := 0; i < el.NumField(); i++ {
		field := el.Field(i)
		fieldType := t.Field(i)
		tag := fieldType.Tag.Get("tui")
		if tag == "" {
			continue
		}

		props := parseTag(tag)
		title := props["title"]
		if title == "" {
			title = fieldType.Name
		}
		desc := props["desc"]

		switch field.Kind() {
		case reflect.String:
			if optsStr, ok := props["options"]; ok {
				var selectOpts []huh.Option[string]
				for _, o := range strings.Split(optsStr, ";") {
					key, value, found := strings.Cut(o, ":")
					if !found {
						value = key
					}
					selectOpts = append(selectOpts, huh.NewOption(strings.TrimSpace(key), strings.TrimSpace(value)))
				}
				fields = append(fields, huh.NewSelect[string]().
					Title(title).
					Description(desc).
					Options(selectOpts...).
					Value(field.Addr().Interface().(*string)))
				continue
			}

			input := huh.NewInput().
				Title(title).
				Description(desc).
				Value(field.Addr().Interface().(*string))
			if props["type"] == "password" {
				input.EchoMode(huh.EchoModePassword)
			}
			if vKey, ok := props["validate"]; ok {
				if validator, exists := Validators[vKey]; exists {
					input.Validate(validator)
				}
			}
			fields = append(fields, input)

		case reflect.Bool:
			fields = append(fields, huh.NewConfirm().
				Title(title).
				Description(desc).
				Value(field.Addr().Interface().(*bool)))
		}
	}

	return huh.NewForm(
		huh.NewGroup(fields...),
	).WithTheme(huh.ThemeBase16()).WithShowHelp(true)
}

// parseTag parses "key=val,key2=val2".
func parseTag(tag string) map[string]string {
	res := make(map[string]string)
	for _, part := range strings.Split(tag, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			res[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
		}
	}
	return res
}

// Validators are referenced by name from the validate tag.
var Validators = map[string]func(string) error{
	"required": func(s string) error {
		if strings.TrimSpace(s) == "" {
			return errors.New("this field is required")
		}
		return nil
	},
	// host accepts an IPv4 address or a host name.
	"host": func(s string) error {
		return validation.ValidateHost(strings.TrimSpace(s))
	},
	"port": func(s string) error {
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
		if err != nil || n == 0 {
			return errors.New("must be a port between 1 and 65535")
		}
		return nil
	},
	// uint accepts an empty value: the field is optional.
	"uint": func(s string) error {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		if _, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32); err != nil {
			return errors.New("must be a non-negative number")
		}
		return nil
	},
}
