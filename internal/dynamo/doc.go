// Package dynamo holds the vocabulary shared by every layer of the engine.
//
// It defines:
//
//   - [Error]: a failure carrying a stable [Code] and the primitive it came from
//   - [Payload]: the structured error form returned by asynchronous runs
//   - [Algorithm]: the integration scheme (Euler or RK4)
//   - [Phase]: the lifecycle of a run (initializing, stepping, paused, ...)
//   - [TimeSettings]: start, length, step and time units of a run
//
// Errors produced anywhere in the lexer, evaluator or solver are *Error values,
// so callers can use errors.As to read the code and attribution:
//
//	var de *dynamo.Error
//	if errors.As(err, &de) && de.Code == dynamo.CodeCircular {
//		...
//	}
package dynamo
