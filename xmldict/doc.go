// Package xmldict converts between XML text and nested Container/list/scalar
// values, in both directions, with a configuration surface covering attribute
// folding, text and CDATA handling, comment capture, namespace expansion,
// repeated-element list policy, and rename/filter hooks.
//
// Both directions are synchronous, single-threaded transforms over
// call-scoped state; concurrent calls from independent goroutines are safe as
// long as each call owns its input source and output value. Sharing one
// io.Reader or chunk sequence across concurrent calls is the caller's bug,
// not something the package guards against. Hooks run synchronously on the
// calling goroutine.
package xmldict
