package cli

import (
	"fmt"
	"io"
	"reflect"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"go.viam.com/pccrop/logging"
	"go.viam.com/pccrop/render"
)

// createCommandWithT wraps an action taking its flags as a struct.
func createCommandWithT[T any](f func(*cli.Context, T) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		return f(c, parseStructFromCtx[T](c))
	}
}

// parseStructFromCtx fills the exported fields of T from the flags of the same name in kebab
// case, or the name in the field's flag tag. Embedded structs are filled the same way.
func parseStructFromCtx[T any](c *cli.Context) T {
	var args T
	v := reflect.ValueOf(&args).Elem()
	if v.Kind() == reflect.Struct {
		fillFromCtx(c, v)
	}
	return args
}

func fillFromCtx(c *cli.Context, v reflect.Value) {
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		fv := v.Field(i)
		if field.Anonymous && fv.Kind() == reflect.Struct {
			fillFromCtx(c, fv)
			continue
		}
		if !field.IsExported() {
			continue
		}
		name := field.Tag.Get("flag")
		if name == "-" {
			continue
		}
		if name == "" {
			name = lo.KebabCase(field.Name)
		}
		//nolint:exhaustive
		switch fv.Kind() {
		case reflect.String:
			fv.SetString(c.String(name))
		case reflect.Bool:
			fv.SetBool(c.Bool(name))
		case reflect.Int:
			fv.SetInt(int64(c.Int(name)))
		case reflect.Float64:
			fv.SetFloat(c.Float64(name))
		case reflect.Slice:
			if fv.Type().Elem().Kind() == reflect.String {
				fv.Set(reflect.ValueOf(c.StringSlice(name)))
			}
		}
	}
}

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with a warning.
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, "Warning: "+format+"\n", a...)
}

// newLogger returns a logger writing to the app's error output and the --log-file, at debug
// level when --debug is set.
func newLogger(c *cli.Context) logging.Logger {
	logger := logging.NewWriterLogger("pccrop", c.App.ErrWriter)
	addLogFileAppender(c, logger)
	if c.Bool(generalFlagDebug) {
		logger.SetLevel(logging.DEBUG)
	}
	return logger
}

type renderArgs struct {
	Width     int
	Height    int
	PointSize float64
	Colormap  string
	Label     string
}

func (args renderArgs) options() (render.Options, error) {
	opts := render.DefaultOptions()
	if args.Width > 0 {
		opts.Width = args.Width
	}
	if args.Height > 0 {
		opts.Height = args.Height
	}
	if args.PointSize > 0 {
		opts.PointSize = args.PointSize
	}
	opts.Label = args.Label
	cm, err := render.ColormapByName(args.Colormap)
	if err != nil {
		return opts, err
	}
	opts.Colormap = cm
	return opts, nil
}
