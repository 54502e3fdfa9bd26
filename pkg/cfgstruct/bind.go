// Package cfgstruct reflects over a config struct and registers one
// pflag flag per leaf field, deriving kebab-case flag names from Go field
// names and substituting $CONFDIR/${CONFDIR} in "default" tags with a
// caller-supplied config directory. cmd/mantafront and cmd/mantafront-admin
// both bind their Config this way, mirroring the teacher's process.Exec.
package cfgstruct

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

var durationType = reflect.TypeOf(time.Duration(0))

type bindOpts struct {
	confDir string
	nested  bool
}

// BindOpt configures Bind's behavior.
type BindOpt func(*bindOpts)

// ConfDir substitutes $CONFDIR/${CONFDIR} in every field's default tag
// with path, unchanged regardless of nesting depth.
func ConfDir(path string) BindOpt {
	return func(o *bindOpts) { o.confDir, o.nested = path, false }
}

// ConfDirNested is like ConfDir, but appends each traversed struct
// field's kebab-case name as a path segment, so defaults under a nested
// struct land in their own subdirectory of path.
func ConfDirNested(path string) BindOpt {
	return func(o *bindOpts) { o.confDir, o.nested = path, true }
}

// Bind registers a flag for every leaf field of config (a pointer to a
// struct), recursing into nested structs and fixed-size arrays.
func Bind(flags *pflag.FlagSet, config interface{}, opts ...BindOpt) {
	o := &bindOpts{}
	for _, opt := range opts {
		opt(o)
	}
	bindStruct(flags, "", reflect.ValueOf(config).Elem(), o, o.confDir)
}

func bindStruct(flags *pflag.FlagSet, prefix string, v reflect.Value, o *bindOpts, confDir string) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue // unexported
		}
		fv := v.Field(i)
		name := joinName(prefix, kebab(field.Name))

		switch {
		case fv.Kind() == reflect.Struct && fv.Type() != durationType:
			childConfDir := confDir
			if o.nested {
				childConfDir = filepath.Join(confDir, kebab(field.Name))
			}
			bindStruct(flags, name, fv, o, childConfDir)

		case fv.Kind() == reflect.Array:
			width := len(strconv.Itoa(fv.Len()))
			for idx := 0; idx < fv.Len(); idx++ {
				elemName := fmt.Sprintf("%s.%0*d", name, width, idx)
				elem := fv.Index(idx)
				if elem.Kind() == reflect.Struct && elem.Type() != durationType {
					bindStruct(flags, elemName, elem, o, confDir)
				} else {
					bindLeaf(flags, elemName, field, elem, confDir)
				}
			}

		default:
			bindLeaf(flags, name, field, fv, confDir)
		}
	}
}

func bindLeaf(flags *pflag.FlagSet, name string, field reflect.StructField, fv reflect.Value, confDir string) {
	raw := field.Tag.Get("default")
	if raw == "" {
		// releaseDefault/devDefault model a build-mode split this binder
		// doesn't implement; releaseDefault is the safer single default.
		raw = field.Tag.Get("releaseDefault")
	}
	def := substituteConfDir(raw, confDir)
	usage := field.Tag.Get("usage")
	defer func() {
		if f := flags.Lookup(name); f != nil && field.Tag.Get("hidden") == "true" {
			f.Hidden = true
		}
	}()

	switch {
	case fv.Type() == durationType:
		d, _ := time.ParseDuration(orDefault(def, "0s"))
		flags.DurationVar(fv.Addr().Interface().(*time.Duration), name, d, usage)
	case fv.Kind() == reflect.String:
		flags.StringVar(fv.Addr().Interface().(*string), name, def, usage)
	case fv.Kind() == reflect.Bool:
		b, _ := strconv.ParseBool(orDefault(def, "false"))
		flags.BoolVar(fv.Addr().Interface().(*bool), name, b, usage)
	case fv.Kind() == reflect.Int:
		n, _ := strconv.Atoi(orDefault(def, "0"))
		flags.IntVar(fv.Addr().Interface().(*int), name, n, usage)
	case fv.Kind() == reflect.Int64:
		n, _ := strconv.ParseInt(orDefault(def, "0"), 10, 64)
		flags.Int64Var(fv.Addr().Interface().(*int64), name, n, usage)
	case fv.Kind() == reflect.Uint:
		n, _ := strconv.ParseUint(orDefault(def, "0"), 10, 64)
		flags.UintVar(fv.Addr().Interface().(*uint), name, uint(n), usage)
	case fv.Kind() == reflect.Uint32:
		n, _ := strconv.ParseUint(orDefault(def, "0"), 10, 32)
		flags.Uint32Var(fv.Addr().Interface().(*uint32), name, uint32(n), usage)
	case fv.Kind() == reflect.Uint64:
		n, _ := strconv.ParseUint(orDefault(def, "0"), 10, 64)
		flags.Uint64Var(fv.Addr().Interface().(*uint64), name, n, usage)
	case fv.Kind() == reflect.Float64:
		f, _ := strconv.ParseFloat(orDefault(def, "0"), 64)
		flags.Float64Var(fv.Addr().Interface().(*float64), name, f, usage)
	default:
		panic(fmt.Sprintf("cfgstruct: unsupported field kind %s for %s", fv.Kind(), name))
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func substituteConfDir(def, confDir string) string {
	def = strings.ReplaceAll(def, "${CONFDIR}", confDir)
	def = strings.ReplaceAll(def, "$CONFDIR", confDir)
	return def
}

// kebab converts a Go exported field name (PascalCase, with runs of
// digits treated as part of the preceding word) to a hyphenated flag
// name segment, e.g. "MyStruct1" -> "my-struct1".
func kebab(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		if i > 0 && isUpper(r) && !isUpper(runes[i-1]) {
			b.WriteByte('-')
		}
		b.WriteRune(toLower(r))
	}
	return b.String()
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

func toLower(r rune) rune {
	if isUpper(r) {
		return r + ('a' - 'A')
	}
	return r
}

func joinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
