// Package invoke performs method invocations against in-process targets.
//
// Targets are resolved by (type, name) through a [Resolver]; methods are
// looked up by (type, method, parameter signature) in a [Registry] and
// cached as [Processor]s by a [MethodCache]. Registration is explicit:
//
//	reg := invoke.NewRegistry()
//	reg.MustRegister(invoke.TypeDescriptor{
//	    Name: "Counter",
//	    Methods: []invoke.Method{
//	        invoke.Func1("Add", func(ctx context.Context, c *Counter, n int) (int, error) {
//	            return c.Add(n), nil
//	        }),
//	    },
//	})
//
// The [Dispatcher] reports each invocation's outcomes through consumers: one
// sync outcome and up to N async parts, each delivered at most once. Late or
// duplicate deliveries are logged and dropped.
package invoke
