package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/freetable/mcp/internal/protocol"
	"github.com/effective-security/freetable/pkg/metricskey"
	"github.com/effective-security/freetable/pkg/schema"
	"github.com/effective-security/xlog"
	"github.com/go-playground/validator/v10"
)

var (
	contextType      = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType        = reflect.TypeOf((*error)(nil)).Elem()
	toolResponseType = reflect.TypeOf(&ToolResponse{})
)

type tool struct {
	name        string
	description string
	schema      *schema.Schema

	handler    reflect.Value
	argType    reflect.Type
	withCtx    bool
	argPointer bool
}

func newTool(name, description string, handler any) (*tool, error) {
	if handler == nil {
		return nil, errors.Errorf("tool %s: handler is required", name)
	}
	hv := reflect.ValueOf(handler)
	ht := hv.Type()
	if ht.Kind() != reflect.Func {
		return nil, errors.Errorf("tool %s: handler must be a function", name)
	}
	if ht.NumOut() != 2 || ht.Out(0) != toolResponseType || !ht.Out(1).Implements(errorType) {
		return nil, errors.Errorf("tool %s: handler must return (*ToolResponse, error)", name)
	}

	t := &tool{
		name:        name,
		description: description,
		handler:     hv,
	}

	switch ht.NumIn() {
	case 1:
	case 2:
		if ht.In(0) != contextType {
			return nil, errors.Errorf("tool %s: first handler argument must be context.Context", name)
		}
		t.withCtx = true
	default:
		return nil, errors.Errorf("tool %s: handler must accept the arguments struct", name)
	}

	argType := ht.In(ht.NumIn() - 1)
	if argType.Kind() == reflect.Pointer {
		t.argPointer = true
		argType = argType.Elem()
	}
	if argType.Kind() != reflect.Struct {
		return nil, errors.Errorf("tool %s: handler arguments must be a struct", name)
	}
	t.argType = argType

	sc, err := schema.New(argType)
	if err != nil {
		return nil, errors.Wrapf(err, "tool %s: failed to create schema", name)
	}
	t.schema = sc

	return t, nil
}

func (t *tool) describe() ToolRetType {
	ret := ToolRetType{
		Name:        t.name,
		InputSchema: t.schema.Parameters,
	}
	if t.description != "" {
		desc := t.description
		ret.Description = &desc
	}
	return ret
}

// call validates the arguments and invokes the handler.
// Validation failures are returned as protocol errors,
// handler failures are returned as error results.
func (t *tool) call(ctx context.Context, validate *validator.Validate, args json.RawMessage) (res *toolResponseSent, err error) {
	arg, err := t.decodeArgs(validate, args)
	if err != nil {
		metricskey.StatsToolCallsInvalid.IncrCounter(1, t.name)
		logger.ContextKV(ctx, xlog.DEBUG, "tool", t.name, "reason", "invalid_args", "err", err.Error())
		return nil, err
	}

	started := time.Now()
	defer metricskey.PerfToolCall.MeasureSince(started, t.name)

	defer func() {
		if r := recover(); r != nil {
			logger.ContextKV(ctx, xlog.ERROR,
				"tool", t.name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			metricskey.StatsToolCallsFailed.IncrCounter(1, t.name)
			res = newToolResponseSentError(errors.Errorf("internal error: %v", r))
			err = nil
		}
	}()

	in := []reflect.Value{}
	if t.withCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	if t.argPointer {
		in = append(in, arg)
	} else {
		in = append(in, arg.Elem())
	}

	out := t.handler.Call(in)
	if e, _ := out[1].Interface().(error); e != nil {
		metricskey.StatsToolCallsFailed.IncrCounter(1, t.name)
		logger.ContextKV(ctx, xlog.DEBUG, "tool", t.name, "err", e.Error())
		return newToolResponseSentError(e), nil
	}

	metricskey.StatsToolCallsSucceeded.IncrCounter(1, t.name)
	resp, _ := out[0].Interface().(*ToolResponse)
	return newToolResponseSent(resp), nil
}

// decodeArgs returns a pointer to a new arguments struct populated from args
func (t *tool) decodeArgs(validate *validator.Validate, args json.RawMessage) (reflect.Value, error) {
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(args, &fields); err != nil {
		return reflect.Value{}, invalidArgs(t.name, "arguments must be a JSON object")
	}

	var missing []string
	for _, name := range t.schema.RequiredProperties() {
		if v, ok := fields[name]; !ok || string(v) == "null" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return reflect.Value{}, invalidArgs(t.name, "missing required fields: %s", strings.Join(missing, ", "))
	}

	arg := reflect.New(t.argType)
	if err := json.Unmarshal(args, arg.Interface()); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return reflect.Value{}, invalidArgs(t.name, "field %s: expected %s, got %s", typeErr.Field, typeErr.Type.String(), typeErr.Value)
		}
		return reflect.Value{}, invalidArgs(t.name, "%s", err.Error())
	}

	if err := validate.Struct(arg.Interface()); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describeFieldError(fe))
			}
			slices.Sort(msgs)
			return reflect.Value{}, invalidArgs(t.name, "%s", strings.Join(msgs, "; "))
		}
		return reflect.Value{}, invalidArgs(t.name, "%s", err.Error())
	}

	return arg, nil
}

func invalidArgs(tool, format string, args ...any) error {
	return protocol.NewError(CodeInvalidParams, "invalid arguments for tool %s: %s", tool, fmt.Sprintf(format, args...))
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("field %s: is required", fe.Field())
	case "email":
		return fmt.Sprintf("field %s: must be a valid email address", fe.Field())
	case "min", "gte":
		return fmt.Sprintf("field %s: must be at least %s", fe.Field(), fe.Param())
	case "max", "lte":
		return fmt.Sprintf("field %s: must be at most %s", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("field %s: failed %q validation", fe.Field(), fe.Tag())
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their wire names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}
