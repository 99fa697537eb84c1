/*
Package generator defines the contract shared by every synthesis engine in
Nepenthes: a Generator is initialized once, produces values until it reports
io.EOF (or forever, for unbounded generators), can be reset to its post-init
state, and is finally closed.

Generators are single cursors and are not safe for concurrent use unless their
Capabilities say otherwise. Callers running several workers should either
serialize access or create one instance per worker when the generator is
Parallelizable.
*/
package generator
