package invoke

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/NamazuStudios/elements-sub015/internal/reflector"
)

// Strategy decides how a method's return value becomes the sync outcome.
type Strategy int

const (
	// PassThrough wraps the returned value as the result.
	PassThrough Strategy = iota
	// Ignore discards the return value and answers with an empty success.
	Ignore
	// BlockingFuture waits for the returned [Future] and wraps its outcome.
	BlockingFuture
)

func (s Strategy) String() string {
	switch s {
	case PassThrough:
		return "pass-through"
	case Ignore:
		return "ignore"
	case BlockingFuture:
		return "blocking-future"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// CallFunc performs a call on target with the decoded arguments.
type CallFunc func(ctx context.Context, target any, args Args) (any, error)

// Method is one registered method overload.
type Method struct {
	Name       string
	Parameters []string
	Strategy   Strategy
	Call       CallFunc
}

func (m Method) Signature() string { return strings.Join(m.Parameters, ",") }

// TypeDescriptor lists the methods callable on targets of one type.
type TypeDescriptor struct {
	Name    string
	Methods []Method
}

// Registry is the method table consulted by the [MethodCache]. Types are
// registered up front; registering the same type twice merges the methods.
type Registry struct {
	mu    sync.RWMutex
	types map[string]map[string][]Method
}

func NewRegistry() *Registry {
	return &Registry{types: make(map[string]map[string][]Method)}
}

// Register adds td. Two overloads with the same name and signature are
// rejected with ErrAmbiguousMethod.
func (r *Registry) Register(td TypeDescriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	methods, ok := r.types[td.Name]
	if !ok {
		methods = make(map[string][]Method)
		r.types[td.Name] = methods
	}
	for _, m := range td.Methods {
		if m.Call == nil {
			return fmt.Errorf("register %s#%s: nil call func", td.Name, m.Name)
		}
		for _, existing := range methods[m.Name] {
			if existing.Signature() == m.Signature() {
				return fmt.Errorf("register %s#%s(%s): %w", td.Name, m.Name, m.Signature(), ErrAmbiguousMethod)
			}
		}
		methods[m.Name] = append(methods[m.Name], m)
	}
	return nil
}

// MustRegister is Register for static tables; it panics on error.
func (r *Registry) MustRegister(td TypeDescriptor) {
	if err := r.Register(td); err != nil {
		panic(err)
	}
}

// Types returns the registered type names.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.types))
	for name := range r.types {
		out = append(out, name)
	}
	return out
}

func (r *Registry) lookup(key MethodKey) (Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods, ok := r.types[key.Type]
	if !ok {
		return Method{}, fmt.Errorf("%w: %s", ErrNoSuchType, key.Type)
	}
	overloads := methods[key.Method]
	if len(overloads) == 0 {
		return Method{}, fmt.Errorf("%w: %s", ErrNoSuchMethod, key)
	}
	if key.Signature == "" {
		if len(overloads) > 1 {
			return Method{}, fmt.Errorf("%w: %s has %d overloads", ErrAmbiguousMethod, key, len(overloads))
		}
		return overloads[0], nil
	}
	for _, m := range overloads {
		if m.Signature() == key.Signature {
			return m, nil
		}
	}
	return Method{}, fmt.Errorf("%w: %s", ErrNoSuchMethod, key)
}

// ===== typed registration helpers =====

type MethodOption func(*Method)

// WithParameters overrides the parameter signature derived from Go types.
func WithParameters(params ...string) MethodOption {
	return func(m *Method) { m.Parameters = params }
}

func WithStrategy(s Strategy) MethodOption {
	return func(m *Method) { m.Strategy = s }
}

func newMethod(name string, params []string, call CallFunc, opts []MethodOption) Method {
	m := Method{Name: name, Parameters: params, Call: call}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func targetAs[T any](target any) (T, error) {
	t, ok := target.(T)
	if !ok {
		return t, fmt.Errorf("%w: want %s, have %s", ErrTargetType, reflector.TypeInfoFor[T]().Name, reflector.TypeInfoOf(target).Name)
	}
	return t, nil
}

func argAs[A any](args Args, i int) (a A, err error) {
	err = args.Decode(i, &a)
	return
}

func checkArgs(args Args, n int) error {
	if args.Len() != n {
		return fmt.Errorf("%w: want %d, have %d", ErrArgumentCount, n, args.Len())
	}
	return nil
}

// Func0 registers a method without parameters.
func Func0[T, R any](name string, fn func(context.Context, T) (R, error), opts ...MethodOption) Method {
	return newMethod(name, nil, func(ctx context.Context, target any, args Args) (any, error) {
		t, err := targetAs[T](target)
		if err != nil {
			return nil, err
		}
		if err := checkArgs(args, 0); err != nil {
			return nil, err
		}
		return fn(ctx, t)
	}, opts)
}

// Func1 registers a method with one parameter.
func Func1[T, A, R any](name string, fn func(context.Context, T, A) (R, error), opts ...MethodOption) Method {
	params := []string{reflector.TypeInfoFor[A]().Name}
	return newMethod(name, params, func(ctx context.Context, target any, args Args) (any, error) {
		t, err := targetAs[T](target)
		if err != nil {
			return nil, err
		}
		if err := checkArgs(args, 1); err != nil {
			return nil, err
		}
		a, err := argAs[A](args, 0)
		if err != nil {
			return nil, err
		}
		return fn(ctx, t, a)
	}, opts)
}

// Func2 registers a method with two parameters.
func Func2[T, A, B, R any](name string, fn func(context.Context, T, A, B) (R, error), opts ...MethodOption) Method {
	params := []string{reflector.TypeInfoFor[A]().Name, reflector.TypeInfoFor[B]().Name}
	return newMethod(name, params, func(ctx context.Context, target any, args Args) (any, error) {
		t, err := targetAs[T](target)
		if err != nil {
			return nil, err
		}
		if err := checkArgs(args, 2); err != nil {
			return nil, err
		}
		a, err := argAs[A](args, 0)
		if err != nil {
			return nil, err
		}
		b, err := argAs[B](args, 1)
		if err != nil {
			return nil, err
		}
		return fn(ctx, t, a, b)
	}, opts)
}

// Proc1 registers a one-parameter method without a return value. Its
// strategy is Ignore.
func Proc1[T, A any](name string, fn func(context.Context, T, A) error, opts ...MethodOption) Method {
	m := Func1(name, func(ctx context.Context, t T, a A) (struct{}, error) {
		return struct{}{}, fn(ctx, t, a)
	}, opts...)
	if m.Strategy == PassThrough {
		m.Strategy = Ignore
	}
	return m
}
