/*
Package jsexport exports Go types as JavaScript classes to an embedded JavaScript engine.

A ClassBuilder describes the JavaScript-visible surface of one Go type (value properties,
function properties and lifecycle callbacks). Build validates the description, freezes it
into a ClassDescriptor and registers a ClassDefinition with the Engine. From then on the
engine calls back into the trampolines of the definition, which recover the Go instance
attached to the engine object, run the registered callback and report failures through the
exception out-parameter instead of letting them escape.
*/
package jsexport
